// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
)

// ListSessions handles GET /v1/sessions. Returns the stats of every live
// session in the conversation store.
func ListSessions(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := store.AllStats()
		c.JSON(http.StatusOK, gin.H{
			"count":    len(stats),
			"sessions": stats,
		})
	}
}

// GetSession handles GET /v1/sessions/:session_id.
func GetSession(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		stats, ok := store.Stats(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// DeleteSession handles DELETE /v1/sessions/:session_id.
func DeleteSession(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		if !store.DeleteSession(sessionID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		slog.Info("Deleted session via API", "session_id", sessionID)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": sessionID})
	}
}

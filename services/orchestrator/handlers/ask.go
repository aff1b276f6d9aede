// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the HTTP handlers for the orchestrator API.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abie0416/BiegeAI/services/orchestrator/datatypes"
	"github.com/abie0416/BiegeAI/services/orchestrator/services"
)

// Ask handles POST /v1/ask.
//
// # Description
//
// Binds and validates the question payload, then runs the query pipeline.
// The pipeline degrades internally, so the only error responses here are
// malformed requests; a reachable service always answers with 200.
func Ask(svc services.QueryAnswerer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Rejected invalid ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := svc.Answer(c.Request.Context(), &req)
		c.JSON(http.StatusOK, resp)
	}
}

// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
	"github.com/abie0416/BiegeAI/services/orchestrator/handlers"
	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
	"github.com/abie0416/BiegeAI/services/orchestrator/services"
)

// SetupRoutes wires all HTTP endpoints onto the router.
func SetupRoutes(
	router *gin.Engine,
	querySvc services.QueryAnswerer,
	store *conversation.Store,
	client *weaviate.Client,
	embedding *retrieval.EmbeddingClient,
	enableMetrics bool,
) {
	router.GET("/health", handlers.HealthCheck)
	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", handlers.Ask(querySvc))

		// Ingestion needs both the vector store and the embedding
		// service; without them the endpoints have nothing to serve.
		if client != nil && embedding != nil {
			v1.POST("/documents", handlers.CreateDocument(client, embedding))
			v1.GET("/documents", handlers.ListDocuments(client))
		} else {
			slog.Info("Document endpoints disabled, Weaviate or embedding service not configured")
		}

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(store))
			sessions.GET("/:session_id", handlers.GetSession(store))
			sessions.DELETE("/:session_id", handlers.DeleteSession(store))
		}
	}
}

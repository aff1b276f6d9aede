// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
)

const (
	chunkSize    = 500
	chunkOverlap = 100
)

// chunkSeparators favor sentence boundaries and include the CJK
// terminators so mixed-language documents split cleanly.
var chunkSeparators = []string{"\n\n", "\n", "。", "！", "？", ".", "!", "?", " ", ""}

// IngestDocumentRequest is the payload for POST /v1/documents.
type IngestDocumentRequest struct {
	Content string `json:"content" binding:"required"`
	Source  string `json:"source" binding:"required"`
}

// CreateDocument handles POST /v1/documents: chunk, embed, and store one
// document into the knowledge base.
func CreateDocument(client *weaviate.Client, embedding *retrieval.EmbeddingClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		chunksCreated, err := RunIngestion(c.Request.Context(), client, embedding, req)
		if err != nil {
			slog.Error("Ingestion failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Processed document via API",
			"source", req.Source, "chunks_processed", chunksCreated)
		c.JSON(http.StatusCreated, gin.H{
			"status":           "success",
			"source":           req.Source,
			"chunks_processed": chunksCreated,
		})
	}
}

// ListDocuments handles GET /v1/documents: a unique list of all ingested
// parent sources.
func ListDocuments(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		agg, err := client.GraphQL().Aggregate().
			WithClassName(retrieval.DocumentClassName).
			WithGroupBy("parent_source").
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to aggregate documents from Weaviate", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query documents"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"documents": parseGroupedSources(agg.Data)})
	}
}

// parseGroupedSources digs the grouped parent_source values out of the
// dynamically-typed aggregate response.
func parseGroupedSources(data map[string]models.JSONObject) []string {
	var sources []string
	aggMap, ok := data["Aggregate"].(map[string]any)
	if !ok {
		return sources
	}
	groups, ok := aggMap[retrieval.DocumentClassName].([]any)
	if !ok {
		return sources
	}
	for _, groupItem := range groups {
		groupMap, ok := groupItem.(map[string]any)
		if !ok {
			continue
		}
		groupedBy, ok := groupMap["groupedBy"].(map[string]any)
		if !ok {
			continue
		}
		if source, ok := groupedBy["value"].(string); ok {
			sources = append(sources, source)
		}
	}
	return sources
}

// RunIngestion chunks a document, embeds every chunk, and batch-imports
// the results into Weaviate. Chunk ids are content hashes, so re-ingesting
// the same document overwrites rather than duplicates.
func RunIngestion(
	ctx context.Context,
	client *weaviate.Client,
	embedding *retrieval.EmbeddingClient,
	req IngestDocumentRequest,
) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(chunkSeparators),
	)

	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}
	slog.Info("Split document into chunks", "source", req.Source, "chunk_count", len(chunks))

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		vector, err := embedding.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d: %w", i+1, err)
		}

		hash := sha256.Sum256([]byte(chunk))
		docUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  retrieval.DocumentClassName,
			ID:     strfmt.UUID(docUUID.String()),
			Vector: vector,
			Properties: map[string]any{
				"content":       chunk,
				"source":        fmt.Sprintf("%s_part_%d", req.Source, i+1),
				"parent_source": req.Source,
				"ingested_at":   time.Now().UnixMilli(),
			},
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	chunksCreated := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			chunksCreated++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item",
					"source", req.Source, "error", errItem.Message)
			}
		}
	}

	return chunksCreated, nil
}

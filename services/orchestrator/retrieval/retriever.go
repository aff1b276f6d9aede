// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval provides the knowledge-retrieval collaborator for the
// query orchestrator: scored-document types, the Retriever contract, a
// Weaviate-backed implementation, and the relevance filter that decides
// which candidates enter the prompt.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("biegeai.orchestrator.retrieval")

// ScoredDocument is one retrieval candidate. Score follows the
// cosine-distance convention (lower = more similar). Consumed read-only.
type ScoredDocument struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever is the narrow interface the orchestrator uses to fetch
// knowledge candidates. Implementations must return candidates sorted
// best (lowest distance) first.
type Retriever interface {
	// Search returns up to k scored candidates for the query.
	Search(ctx context.Context, query string, k int) ([]ScoredDocument, error)
}

// =============================================================================
// Embedding Service Client
// =============================================================================

// EmbeddingClient calls the external embedding service. Embedding
// computation itself is opaque to this service; we only ship text over and
// receive a vector back.
type EmbeddingClient struct {
	httpClient *http.Client
	baseURL    string
}

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Vector []float32 `json:"vector"`
	Dim    int       `json:"dim"`
}

// NewEmbeddingClient creates a client for the embedding service at baseURL.
func NewEmbeddingClient(baseURL string) *EmbeddingClient {
	return &EmbeddingClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Embed returns the embedding vector for text.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s",
			resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return embResp.Vector, nil
}

// =============================================================================
// Weaviate Retriever
// =============================================================================

// DocumentClassName is the Weaviate class that holds knowledge chunks.
const DocumentClassName = "Document"

// WeaviateRetriever retrieves knowledge chunks from Weaviate with a
// near-vector search. The query is embedded through the external embedding
// service first, then searched by vector with distances reported back as
// scores.
type WeaviateRetriever struct {
	client    *weaviate.Client
	embedding *EmbeddingClient
}

// NewWeaviateRetriever creates a retriever over the given Weaviate client
// and embedding service client. Neither may be nil.
func NewWeaviateRetriever(client *weaviate.Client, embedding *EmbeddingClient) *WeaviateRetriever {
	return &WeaviateRetriever{client: client, embedding: embedding}
}

// documentQueryResponse matches the GraphQL Get response shape for the
// Document class.
type documentQueryResponse struct {
	Get struct {
		Document []struct {
			Content    string `json:"content"`
			Source     string `json:"source"`
			Additional struct {
				Distance *float32 `json:"distance"`
			} `json:"_additional"`
		} `json:"Document"`
	} `json:"Get"`
}

// Search implements Retriever.
//
// # Description
//
// Embeds the query, then runs a near-vector GraphQL query against the
// Document class. Weaviate returns results ordered by distance, which is
// surfaced unchanged as the document score (lower = more similar).
func (r *WeaviateRetriever) Search(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.query", query),
		attribute.Int("retrieval.k", k),
	)

	if k <= 0 {
		k = 3
	}

	vector, err := r.embedding.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	resp, err := r.client.GraphQL().Get().
		WithClassName(DocumentClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, fmt.Errorf("weaviate near-vector query failed: %w", err)
	}

	parsed, err := parseGraphQLResponse[documentQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse retrieval response: %w", err)
	}

	docs := make([]ScoredDocument, 0, len(parsed.Get.Document))
	for _, d := range parsed.Get.Document {
		score := 0.0
		if d.Additional.Distance != nil {
			score = float64(*d.Additional.Distance)
		}
		docs = append(docs, ScoredDocument{
			Content: d.Content,
			Score:   score,
			Metadata: map[string]any{
				"source": d.Source,
			},
		})
	}

	span.SetAttributes(attribute.Int("retrieval.candidates", len(docs)))
	slog.Debug("Retrieved knowledge candidates", "query", query, "count", len(docs))
	return docs, nil
}

// parseGraphQLResponse converts Weaviate's dynamic response into a typed
// struct via a marshal/unmarshal round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
	"github.com/abie0416/BiegeAI/services/orchestrator/datatypes"
	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockAnswerer is a minimal QueryAnswerer for route registration tests.
type mockAnswerer struct{}

func (m *mockAnswerer) Answer(_ context.Context, req *datatypes.AskRequest) *datatypes.AskResponse {
	return &datatypes.AskResponse{Answer: "mock answer", SessionID: req.SessionID}
}

func newTestRouter(enableMetrics bool) *gin.Engine {
	router := gin.New()
	store := conversation.NewStore(conversation.DefaultConfig())
	SetupRoutes(router, &mockAnswerer{}, store, nil, nil, enableMetrics)
	return router
}

func newTestRouterWithIngestion(t *testing.T) *gin.Engine {
	t.Helper()
	client, err := weaviate.NewClient(weaviate.Config{Host: "weaviate:8080", Scheme: "http"})
	if err != nil {
		t.Fatalf("failed to create Weaviate client: %v", err)
	}
	router := gin.New()
	store := conversation.NewStore(conversation.DefaultConfig())
	SetupRoutes(router, &mockAnswerer{}, store, client,
		retrieval.NewEmbeddingClient("http://embedding:8001"), false)
	return router
}

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := newTestRouter(true)

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/ask"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/:session_id"},
		{"DELETE", "/v1/sessions/:session_id"},
	}

	for _, expected := range coreRoutes {
		if !hasRoute(router, expected.method, expected.path) {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_DocumentRoutesRequireWeaviate(t *testing.T) {
	// nil Weaviate client and embedding client: no ingestion surface.
	router := newTestRouter(false)

	if hasRoute(router, "POST", "/v1/documents") {
		t.Error("POST /v1/documents should not be registered without Weaviate")
	}
	if hasRoute(router, "GET", "/v1/documents") {
		t.Error("GET /v1/documents should not be registered without Weaviate")
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/documents", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("POST /v1/documents = %d, want 404 when ingestion is disabled", w.Code)
	}
}

func TestSetupRoutes_DocumentRoutesWithWeaviate(t *testing.T) {
	router := newTestRouterWithIngestion(t)

	if !hasRoute(router, "POST", "/v1/documents") {
		t.Error("POST /v1/documents should be registered with Weaviate configured")
	}
	if !hasRoute(router, "GET", "/v1/documents") {
		t.Error("GET /v1/documents should be registered with Weaviate configured")
	}
}

func TestSetupRoutes_MetricsDisabled(t *testing.T) {
	router := newTestRouter(false)

	if hasRoute(router, "GET", "/metrics") {
		t.Error("Metrics route should not be registered when metrics are disabled")
	}
	if !hasRoute(router, "GET", "/health") {
		t.Error("Health route should be registered regardless of metrics")
	}
}

func TestSetupRoutes_HealthEndpointServes(t *testing.T) {
	router := newTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", w.Code)
	}
}

func TestSetupRoutes_AskEndpointServes(t *testing.T) {
	router := newTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", nil)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// Empty body is rejected by the handler, not by routing.
	if w.Code == http.StatusNotFound {
		t.Error("POST /v1/ask should be routed")
	}
}

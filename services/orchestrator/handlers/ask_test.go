// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abie0416/BiegeAI/services/orchestrator/datatypes"
)

// =============================================================================
// Test Helpers
// =============================================================================

// stubAnswerer records the last request and returns a canned response.
type stubAnswerer struct {
	lastRequest *datatypes.AskRequest
	response    *datatypes.AskResponse
}

func (s *stubAnswerer) Answer(_ context.Context, req *datatypes.AskRequest) *datatypes.AskResponse {
	s.lastRequest = req
	if s.response != nil {
		return s.response
	}
	return &datatypes.AskResponse{
		Answer:    "stub answer",
		SessionID: "stub-session",
		Diagnostics: datatypes.AskDiagnostics{
			Method: "direct",
		},
	}
}

func newAskRouter(svc *stubAnswerer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/ask", Ask(svc))
	return router
}

func postAsk(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Ask Handler Tests
// =============================================================================

func TestAsk_ReturnsAnswer(t *testing.T) {
	svc := &stubAnswerer{}
	router := newAskRouter(svc)

	w := postAsk(router, `{"question": "What is Go?", "session_id": "sess-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var response datatypes.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "stub answer", response.Answer)
	assert.Equal(t, "stub-session", response.SessionID)
	assert.Equal(t, "direct", response.Diagnostics.Method)

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, "What is Go?", svc.lastRequest.Question)
	assert.Equal(t, "sess-1", svc.lastRequest.SessionID)
}

func TestAsk_EmptySessionIDIsAllowed(t *testing.T) {
	svc := &stubAnswerer{}
	router := newAskRouter(svc)

	w := postAsk(router, `{"question": "hello"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastRequest)
	assert.Empty(t, svc.lastRequest.SessionID)
}

func TestAsk_InvalidJSON(t *testing.T) {
	svc := &stubAnswerer{}
	router := newAskRouter(svc)

	w := postAsk(router, `{invalid json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastRequest, "pipeline should not run on malformed input")

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Contains(t, response["error"], "Invalid")
}

func TestAsk_MissingQuestion(t *testing.T) {
	svc := &stubAnswerer{}
	router := newAskRouter(svc)

	w := postAsk(router, `{"session_id": "sess-1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastRequest)
}

func TestAsk_OversizedQuestionRejected(t *testing.T) {
	svc := &stubAnswerer{}
	router := newAskRouter(svc)

	question := strings.Repeat("a", datatypes.MaxQuestionBytes+1)
	body, _ := json.Marshal(map[string]string{"question": question})
	w := postAsk(router, string(body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastRequest)
}

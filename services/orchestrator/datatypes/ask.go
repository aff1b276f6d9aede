// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the request and response types for the question
// answering endpoint.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/abie0416/BiegeAI/services/orchestrator/agent"
)

// MaxQuestionBytes bounds the question payload. Oversized questions are
// rejected at validation rather than truncated.
const MaxQuestionBytes = 8 * 1024

// askValidate is the validator instance for ask datatypes.
var askValidate = validator.New()

// AskRequest is the payload for POST /v1/ask.
type AskRequest struct {
	// Question is the natural-language question. Required.
	Question string `json:"question" validate:"required,max=8192"`

	// SessionID continues an existing conversation when set. Empty starts
	// a fresh session. The response always carries the effective id.
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// Validate checks the request against its constraints.
func (r *AskRequest) Validate() error {
	if err := askValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid ask request: %w", err)
	}
	return nil
}

// AskDiagnostics exposes how an answer was produced.
type AskDiagnostics struct {
	// Method is "direct" or "tools".
	Method string `json:"method"`

	// ContextLength is the character length of the conversation window
	// included in the prompt.
	ContextLength int `json:"context_length"`

	// ContextMessages is the number of history messages that fit the
	// window.
	ContextMessages int `json:"context_messages"`

	// DocsRetrieved is the number of knowledge candidates fetched.
	DocsRetrieved int `json:"docs_retrieved"`

	// DocsUsed is the number of candidates that survived relevance
	// filtering.
	DocsUsed int `json:"docs_used"`

	// ToolCalls lists executed tool calls in order.
	ToolCalls []agent.ToolCallRecord `json:"tool_calls,omitempty"`

	// DuplicateWarnings counts rejected duplicate tool requests.
	DuplicateWarnings int `json:"duplicate_warnings,omitempty"`
}

// AskResponse is the reply for POST /v1/ask. Answer is always populated;
// degraded runs explain themselves inside the answer text instead of
// failing the request.
type AskResponse struct {
	Answer      string         `json:"answer"`
	SessionID   string         `json:"session_id"`
	Diagnostics AskDiagnostics `json:"diagnostics"`
}

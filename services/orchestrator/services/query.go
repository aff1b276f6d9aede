// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating calls to collaborators (conversation store, retriever,
//     tool loop)
//   - Applying business rules and degradation policies
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abie0416/BiegeAI/services/orchestrator/agent"
	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
	"github.com/abie0416/BiegeAI/services/orchestrator/datatypes"
	"github.com/abie0416/BiegeAI/services/orchestrator/observability"
	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
)

// queryTracer is the OpenTelemetry tracer for QueryService operations.
var queryTracer = otel.Tracer("biegeai.orchestrator.services.query")

// Compile-time interface implementation check.
var _ QueryAnswerer = (*QueryService)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// QueryAnswerer defines the contract for answering a question inside a
// conversation.
//
// # Description
//
// Implementations run the full pipeline: resolve the session, assemble
// conversation context, retrieve and filter knowledge, drive the tool
// loop, and record the exchange back into the session. Failures of any
// collaborator after startup degrade into the answer text; the call
// itself never fails.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type QueryAnswerer interface {
	// Answer produces a response for one question. The returned response
	// is never nil and its Answer field is never empty.
	Answer(ctx context.Context, req *datatypes.AskRequest) *datatypes.AskResponse
}

// =============================================================================
// QueryService
// =============================================================================

// QueryConfig carries the retrieval knobs for the query pipeline.
type QueryConfig struct {
	// TopK is the number of knowledge candidates to fetch. Defaults to 3.
	TopK int

	// Threshold is the maximum distance for a candidate to count as
	// relevant. Defaults to retrieval.DefaultThreshold.
	Threshold float64

	// MinDocs is the floor of candidates kept whenever any were fetched.
	// Defaults to retrieval.DefaultMinDocs.
	MinDocs int
}

func (c *QueryConfig) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.Threshold <= 0 {
		c.Threshold = retrieval.DefaultThreshold
	}
	if c.MinDocs <= 0 {
		c.MinDocs = retrieval.DefaultMinDocs
	}
}

// QueryService answers questions by combining conversation history,
// retrieved knowledge, and the tool loop.
type QueryService struct {
	store     *conversation.Store
	retriever retrieval.Retriever
	loop      *agent.ToolLoop
	cfg       QueryConfig
}

// NewQueryService creates a query service. The store and loop are
// required; a nil retriever disables knowledge retrieval and every answer
// falls back to conversation context and tools.
func NewQueryService(
	store *conversation.Store,
	retriever retrieval.Retriever,
	loop *agent.ToolLoop,
	cfg QueryConfig,
) *QueryService {
	cfg.applyDefaults()
	return &QueryService{
		store:     store,
		retriever: retriever,
		loop:      loop,
		cfg:       cfg,
	}
}

// Answer implements QueryAnswerer.
//
// # Description
//
// Runs the pipeline sequentially: session resolution, conversation
// context assembly, knowledge retrieval with relevance filtering, the
// tool loop, and finally persisting the question and answer into the
// session. Retrieval failures are logged and treated as "no candidates";
// they never abort the question.
func (s *QueryService) Answer(ctx context.Context, req *datatypes.AskRequest) *datatypes.AskResponse {
	ctx, span := queryTracer.Start(ctx, "QueryService.Answer")
	defer span.End()
	start := time.Now()

	sessionID := s.store.GetOrCreateSession(req.SessionID)
	span.SetAttributes(attribute.String("query.session_id", sessionID))

	historyContext, ctxStats := s.store.GetConversationContext(sessionID, req.Question)

	docs := s.retrieve(ctx, req.Question)
	relevant := retrieval.FilterRelevant(docs, s.cfg.Threshold, s.cfg.MinDocs)
	observability.RecordRetrieval(len(docs), len(relevant))

	combined := buildCombinedContext(historyContext, relevant)
	outcome := s.loop.Run(ctx, req.Question, combined)

	// AddMessage may land on a fresh session after expiry or a long
	// pause; the answer must follow the question into the same one.
	finalID := s.store.AddMessage(sessionID, conversation.SenderUser, req.Question)
	finalID = s.store.AddMessage(finalID, conversation.SenderAgent, outcome.Answer)

	s.record(outcome, time.Since(start))
	span.SetAttributes(
		attribute.String("query.method", outcome.Method),
		attribute.Int("query.docs_retrieved", len(docs)),
		attribute.Int("query.docs_used", len(relevant)),
		attribute.Int("query.tool_calls", len(outcome.ToolCalls)),
	)
	slog.Info("Answered question",
		"session_id", finalID,
		"method", outcome.Method,
		"docs_used", len(relevant),
		"tool_calls", len(outcome.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &datatypes.AskResponse{
		Answer:    outcome.Answer,
		SessionID: finalID,
		Diagnostics: datatypes.AskDiagnostics{
			Method:            outcome.Method,
			ContextLength:     ctxStats.ContextLength,
			ContextMessages:   ctxStats.MessageCount,
			DocsRetrieved:     len(docs),
			DocsUsed:          len(relevant),
			ToolCalls:         outcome.ToolCalls,
			DuplicateWarnings: outcome.DuplicateWarnings,
		},
	}
}

// retrieve fetches knowledge candidates, degrading to none on failure.
func (s *QueryService) retrieve(ctx context.Context, question string) []retrieval.ScoredDocument {
	if s.retriever == nil {
		return nil
	}
	docs, err := s.retriever.Search(ctx, question, s.cfg.TopK)
	if err != nil {
		slog.Warn("Knowledge retrieval failed, continuing without documents", "error", err)
		return nil
	}
	return docs
}

func (s *QueryService) record(outcome agent.Outcome, elapsed time.Duration) {
	observability.RecordQuery(outcome.Method, elapsed.Seconds())
	for _, call := range outcome.ToolCalls {
		observability.RecordToolCall(call.Tool, call.Failed)
	}
	observability.RecordDuplicateToolCalls(outcome.DuplicateWarnings)
	observability.SetActiveSessions(s.store.Len())
}

// buildCombinedContext merges conversation history and relevant knowledge
// into the single context block the tool loop receives. When no knowledge
// survived filtering, the marker tells the model so explicitly instead of
// leaving it to guess.
func buildCombinedContext(historyContext string, docs []retrieval.ScoredDocument) string {
	var b strings.Builder

	if historyContext != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(historyContext)
		b.WriteString("\n\n")
	}

	if len(docs) == 0 {
		b.WriteString(retrieval.NoKnowledgeMarker)
		return b.String()
	}

	b.WriteString("Relevant knowledge:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, doc.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

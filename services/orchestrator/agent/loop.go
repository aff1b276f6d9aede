// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/abie0416/BiegeAI/services/llm"
)

var loopTracer = otel.Tracer("biegeai.orchestrator.agent")

// LLMErrorMarker prefixes completions that stand in for a failed model
// call. The loop treats marked completions as unusable and falls back
// instead of feeding them onward.
const LLMErrorMarker = "[LLM Error]"

// Completer produces one model completion for one prompt. Failures are
// folded into the returned string with the LLMErrorMarker prefix so that
// callers downstream of startup never handle transport errors.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

// llmCompleter adapts an llm.LLMClient to the Completer contract.
type llmCompleter struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewLLMCompleter wraps an LLM backend client as a Completer. Generation
// errors become marked strings rather than Go errors.
func NewLLMCompleter(client llm.LLMClient, params llm.GenerationParams) Completer {
	return &llmCompleter{client: client, params: params}
}

func (c *llmCompleter) Complete(ctx context.Context, prompt string) string {
	out, err := c.client.Generate(ctx, prompt, c.params)
	if err != nil {
		slog.Error("LLM generation failed", "error", err)
		return fmt.Sprintf("%s %v", LLMErrorMarker, err)
	}
	return out
}

// ToolCallRecord documents one executed tool call for diagnostics and for
// the synthesis prompt.
type ToolCallRecord struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result"`
	Failed    bool           `json:"failed"`
}

// Outcome is the result of one tool-loop run.
type Outcome struct {
	// Answer is always non-empty.
	Answer string `json:"answer"`

	// Method is "direct" when the model answered without tools and
	// "tools" when at least one tool executed.
	Method string `json:"method"`

	// ToolCalls lists the executed tool calls in order.
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`

	// DuplicateWarnings counts rejected duplicate tool requests.
	DuplicateWarnings int `json:"duplicate_warnings,omitempty"`
}

// LoopConfig configures a ToolLoop.
type LoopConfig struct {
	// MaxToolCalls is the ceiling of executed tool calls per run.
	// Defaults to 5.
	MaxToolCalls int

	// Sanitize enables the content-safety pass over the final answer.
	Sanitize bool
}

func (c *LoopConfig) applyDefaults() {
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = 5
	}
}

// ToolLoop drives the bounded request-execute-feed-back protocol between
// the model and the tool registry.
type ToolLoop struct {
	registry  *Registry
	completer Completer
	cfg       LoopConfig
}

// NewToolLoop creates a loop over the given registry and completer.
func NewToolLoop(registry *Registry, completer Completer, cfg LoopConfig) *ToolLoop {
	cfg.applyDefaults()
	return &ToolLoop{registry: registry, completer: completer, cfg: cfg}
}

// Run answers the question, letting the model invoke tools along the way.
//
// # Description
//
// The model is prompted with the tool catalog, the context, and the
// question. Each response is scanned for a JSON tool request; requests are
// executed and their output fed back until the model answers in plain
// text, the executed-call ceiling is reached, or the model stalls.
// Requesting the tool that just ran does not execute again and does not
// consume budget; the model receives a warning and another turn. When at
// least one tool executed, a final synthesis completion folds all results
// into one answer.
//
// # Outputs
//
// An Outcome whose Answer is always non-empty. Model failures mid-loop
// degrade to the best answer available rather than propagating an error.
func (l *ToolLoop) Run(ctx context.Context, question, contextText string) Outcome {
	ctx, span := loopTracer.Start(ctx, "ToolLoop.Run")
	defer span.End()

	transcript := []string{BuildProtocolPrompt(l.registry, contextText, question)}
	lastTool := ""

	var records []ToolCallRecord
	warnings := 0
	lastText := ""

	// Warnings do not consume tool budget, so a hard turn ceiling keeps a
	// stubborn model from looping forever on duplicates.
	maxTurns := 2*l.cfg.MaxToolCalls + 1

	for turn := 0; turn < maxTurns; turn++ {
		response := l.completer.Complete(ctx, strings.Join(transcript, "\n\n"))
		if strings.HasPrefix(response, LLMErrorMarker) {
			slog.Warn("Model call failed mid-loop, degrading to available results",
				"turn", turn, "executed", len(records))
			return l.finish(ctx, span, question, contextText, records, warnings, lastText)
		}

		call, ok := extractToolCall(response)
		if !ok {
			lastText = strings.TrimSpace(response)
			return l.finish(ctx, span, question, contextText, records, warnings, lastText)
		}

		if len(records) >= l.cfg.MaxToolCalls {
			slog.Info("Tool call ceiling reached", "ceiling", l.cfg.MaxToolCalls)
			return l.finish(ctx, span, question, contextText, records, warnings, lastText)
		}

		// The guard is consecutive only: reusing a tool later in the loop
		// is legitimate, repeating the one just run is not.
		if call.Tool == lastTool {
			warnings++
			slog.Warn("Duplicate tool call rejected", "tool", call.Tool, "warnings", warnings)
			transcript = append(transcript, BuildDuplicateWarning(call.Tool))
			continue
		}

		result := l.registry.Execute(ctx, call.Tool, call.Arguments)
		lastTool = call.Tool
		records = append(records, ToolCallRecord{
			Tool:      call.Tool,
			Arguments: call.Arguments,
			Result:    result.Output,
			Failed:    result.Failed,
		})
		slog.Info("Executed tool", "tool", call.Tool, "failed", result.Failed,
			"executed", len(records))
		transcript = append(transcript, BuildToolResultPrompt(result))
	}

	slog.Warn("Tool loop turn ceiling reached", "turns", maxTurns)
	return l.finish(ctx, span, question, contextText, records, warnings, lastText)
}

// finish produces the final Outcome: synthesis when tools ran, the plain
// answer otherwise, plus the optional sanitization pass.
func (l *ToolLoop) finish(
	ctx context.Context,
	span trace.Span,
	question, contextText string,
	records []ToolCallRecord,
	warnings int,
	lastText string,
) Outcome {
	outcome := Outcome{
		Method:            "direct",
		ToolCalls:         records,
		DuplicateWarnings: warnings,
	}

	if len(records) > 0 {
		outcome.Method = "tools"
		synthesis := l.completer.Complete(ctx, BuildSynthesisPrompt(question, contextText, records))
		if strings.HasPrefix(synthesis, LLMErrorMarker) {
			outcome.Answer = fallbackAnswer(records, lastText)
		} else {
			outcome.Answer = strings.TrimSpace(synthesis)
		}
	} else {
		outcome.Answer = lastText
	}

	// With no model text and no tool output, the context block is still
	// the best partial result available.
	if outcome.Answer == "" {
		outcome.Answer = "I was unable to produce an answer to this question."
		if contextText != "" {
			outcome.Answer += " Here is what I had to work with:\n" + contextText
		}
	}

	if l.cfg.Sanitize {
		sanitized := l.completer.Complete(ctx, BuildSanitizationPrompt(outcome.Answer))
		if !strings.HasPrefix(sanitized, LLMErrorMarker) && strings.TrimSpace(sanitized) != "" {
			outcome.Answer = strings.TrimSpace(sanitized)
		}
	}

	span.SetAttributes(
		attribute.String("agent.method", outcome.Method),
		attribute.Int("agent.tool_calls", len(outcome.ToolCalls)),
		attribute.Int("agent.duplicate_warnings", outcome.DuplicateWarnings),
	)
	return outcome
}

// fallbackAnswer builds a last-resort answer from tool output when the
// synthesis call itself fails.
func fallbackAnswer(records []ToolCallRecord, lastText string) string {
	if lastText != "" {
		return lastText
	}
	var b strings.Builder
	b.WriteString("I gathered the following while answering:\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, rec.Tool, rec.Result)
	}
	return b.String()
}

// toolCall is the JSON shape the model uses to request a tool.
type toolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// extractToolCall scans a model response for a tool request: the slice
// from the first '{' to the last '}' must parse as JSON with a non-empty
// "tool" field. Anything else is treated as a plain-text answer.
func extractToolCall(response string) (toolCall, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return toolCall{}, false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(response[start:end+1]), &call); err != nil {
		return toolCall{}, false
	}
	if call.Tool == "" {
		return toolCall{}, false
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call, true
}

// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"strings"
	"testing"
)

func echoTool(name string) Descriptor {
	return Descriptor{
		Name:        name,
		Description: "echoes its input",
		Parameters:  map[string]string{"text": "text to echo"},
		Invoke: func(_ context.Context, args map[string]any) string {
			return StringArg(args, "text")
		},
	}
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry(echoTool("echo"))

	res := reg.Execute(context.Background(), "echo", map[string]any{"text": "hello"})
	if res.Failed {
		t.Fatalf("unexpected failure: %s", res.Output)
	}
	if res.Output != "hello" {
		t.Errorf("got %q, want %q", res.Output, "hello")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry(echoTool("echo"))

	res := reg.Execute(context.Background(), "missing", nil)
	if !res.Failed {
		t.Fatal("unknown tool must fail")
	}
	if !strings.Contains(res.Output, "unknown tool") {
		t.Errorf("output should name the problem: %s", res.Output)
	}
	if !strings.Contains(res.Output, "echo") {
		t.Errorf("output should list available tools: %s", res.Output)
	}
}

func TestRegistryRecoversPanic(t *testing.T) {
	reg := NewRegistry(Descriptor{
		Name:        "boom",
		Description: "always panics",
		Invoke: func(_ context.Context, _ map[string]any) string {
			panic("kaboom")
		},
	})

	res := reg.Execute(context.Background(), "boom", nil)
	if !res.Failed {
		t.Fatal("panicking tool must produce a failed result")
	}
	if !strings.Contains(res.Output, "kaboom") {
		t.Errorf("panic value should appear in output: %s", res.Output)
	}
}

func TestRegistrySkipsInvalidDescriptors(t *testing.T) {
	reg := NewRegistry(
		echoTool("valid"),
		Descriptor{Name: "", Invoke: func(_ context.Context, _ map[string]any) string { return "" }},
		Descriptor{Name: "no_invoke"},
	)

	if reg.Len() != 1 {
		t.Fatalf("expected 1 registered tool, got %d", reg.Len())
	}
	if !reg.Has("valid") {
		t.Error("valid tool should be registered")
	}
}

func TestRegistrySchemaList(t *testing.T) {
	reg := NewRegistry(echoTool("echo"), echoTool("another"))

	schema := reg.SchemaList()
	if !strings.Contains(schema, "- echo: echoes its input") {
		t.Errorf("schema missing echo entry:\n%s", schema)
	}
	// Sorted order.
	if strings.Index(schema, "another") > strings.Index(schema, "echo") {
		t.Errorf("schema should be sorted by name:\n%s", schema)
	}
}

func TestStringArgFallsBackToFirstString(t *testing.T) {
	args := map[string]any{"q": "the query"}
	if got := StringArg(args, "query"); got != "the query" {
		t.Errorf("expected positional fallback, got %q", got)
	}

	args = map[string]any{"count": 3, "text": "value"}
	if got := StringArg(args, "missing"); got != "value" {
		t.Errorf("fallback should skip non-strings, got %q", got)
	}

	if got := StringArg(nil, "anything"); got != "" {
		t.Errorf("nil args should yield empty string, got %q", got)
	}
}

func TestStringArgStringifiesWhenNoStringValue(t *testing.T) {
	args := map[string]any{"count": float64(3), "flag": true}
	got := StringArg(args, "query")
	if !strings.Contains(got, `"count":3`) || !strings.Contains(got, `"flag":true`) {
		t.Errorf("raw arguments should pass through stringified, got %q", got)
	}
}

// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent implements the tool-calling layer of the orchestrator: the
// registry of callable tools, their implementations, the prompt contracts
// handed to the model, and the bounded tool-execution loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// InvokeFunc executes a tool against already-extracted arguments. Failures
// are returned as human-readable strings with a recognizable prefix, never
// as Go errors; the model reads them the same way it reads success output.
type InvokeFunc func(ctx context.Context, args map[string]any) string

// Descriptor describes one callable tool.
type Descriptor struct {
	// Name is the identifier the model uses to request the tool.
	Name string

	// Description tells the model when the tool applies.
	Description string

	// Parameters documents the expected arguments, keyed by parameter
	// name with a human-readable description as the value. Arguments are
	// extracted by convention, not validated against this map.
	Parameters map[string]string

	// Invoke runs the tool.
	Invoke InvokeFunc
}

// Result is the outcome of one tool execution.
type Result struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
	Failed bool   `json:"failed"`
}

// Registry is the immutable set of tools available to the agent loop. It is
// fully populated at construction and safe for concurrent reads.
type Registry struct {
	tools map[string]Descriptor
	names []string
}

// NewRegistry builds a registry from the given descriptors. Descriptors
// without a name or invoke function are skipped with a warning; a later
// duplicate name wins over an earlier one.
func NewRegistry(descriptors ...Descriptor) *Registry {
	tools := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" || d.Invoke == nil {
			slog.Warn("Skipping invalid tool descriptor", "name", d.Name)
			continue
		}
		tools[d.Name] = d
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{tools: tools, names: names}
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Execute runs the named tool with the given arguments.
//
// # Description
//
// Unknown tools and panicking tools both produce a failed Result whose
// output is a readable message for the model; Execute itself never returns
// an error. The context is forwarded to the tool for cancellation.
//
// # Limitations
//
// No argument validation happens here. Each tool extracts and checks what
// it needs and reports missing arguments in its own output.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool panicked", "tool", name, "panic", rec)
			result = Result{
				Tool:   name,
				Output: fmt.Sprintf("[Tool Error] %s failed: %v", name, rec),
				Failed: true,
			}
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return Result{
			Tool: name,
			Output: fmt.Sprintf("[Tool Error] unknown tool %q; available tools: %s",
				name, strings.Join(r.names, ", ")),
			Failed: true,
		}
	}

	output := tool.Invoke(ctx, args)
	return Result{
		Tool:   name,
		Output: output,
		Failed: strings.HasPrefix(output, "[Tool Error]"),
	}
}

// SchemaList renders the registry as a plain-text catalog for the system
// prompt: one block per tool with its description and parameters.
func (r *Registry) SchemaList() string {
	var b strings.Builder
	for _, name := range r.names {
		tool := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)

		params := make([]string, 0, len(tool.Parameters))
		for p := range tool.Parameters {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			fmt.Fprintf(&b, "    %s: %s\n", p, tool.Parameters[p])
		}
	}
	return b.String()
}

// StringArg extracts a string argument by name, falling back to the first
// string value in the map when the named key is absent. Single-argument
// tools accept whatever key the model picked. When no string value exists
// at all, the raw arguments are stringified and passed through so the tool
// still sees what the model sent.
func StringArg(args map[string]any, name string) string {
	if v, ok := args[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return firstString(args)
}

// firstString returns the first string value found in args, scanning keys
// in sorted order for determinism. A map with no string values is
// stringified whole.
func firstString(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := args[k].(string); ok {
			return s
		}
	}
	if len(args) == 0 {
		return ""
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(raw)
}

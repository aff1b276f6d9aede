// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"strings"
)

// Prompt templates for the tool loop. The language-mirroring instruction
// and the redaction category list are behavioral contracts with the model
// and must stay stable; tweaking their wording changes answer behavior in
// ways tests cannot catch.

// BuildProtocolPrompt renders the system prompt for one tool-loop run.
//
// # Inputs
//   - registry: tool catalog to advertise.
//   - context: combined conversation and knowledge context, may be empty.
//   - question: the user question.
//
// # Outputs
//
// A single prompt string instructing the model to either answer directly
// or request exactly one tool call as a JSON object.
func BuildProtocolPrompt(registry *Registry, context, question string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant that can use tools to answer questions.\n\n")
	b.WriteString("Available tools:\n")
	b.WriteString(registry.SchemaList())
	b.WriteString("\n")
	b.WriteString("If a tool would help, respond with ONLY a JSON object of the form:\n")
	b.WriteString(`{"tool": "<tool name>", "arguments": {"<param>": "<value>"}}` + "\n")
	b.WriteString("Request at most one tool per response. ")
	b.WriteString("If no tool is needed, answer the question directly in plain text.\n\n")

	if context != "" {
		b.WriteString("Context:\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("IMPORTANT: Answer in the same language as the question.\n")
	return b.String()
}

// BuildToolResultPrompt renders the follow-up message after a tool has
// executed, feeding the output back into the loop.
func BuildToolResultPrompt(result Result) string {
	return fmt.Sprintf(
		"Tool %s returned:\n%s\n\n"+
			"Use this result. Respond with another tool call JSON if another tool "+
			"is needed, or answer the question directly in plain text.",
		result.Tool, result.Output)
}

// BuildDuplicateWarning renders the warning injected when the model asks
// for the tool that just ran.
func BuildDuplicateWarning(toolName string) string {
	return fmt.Sprintf(
		"Tool %s was just used and its result is above. Do not call it again "+
			"right away. Use the existing result, choose a different tool, or "+
			"answer the question directly.",
		toolName)
}

// BuildSynthesisPrompt renders the final prompt that turns the accumulated
// tool results into one coherent answer.
func BuildSynthesisPrompt(question, context string, records []ToolCallRecord) string {
	var b strings.Builder

	b.WriteString("You have gathered the following tool results while answering a question.\n\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, rec.Tool, rec.Result)
	}
	b.WriteString("\n")

	if context != "" {
		b.WriteString("Context:\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Write a single, coherent answer to the question using the tool results ")
	b.WriteString("and context above. Do not mention the tools themselves.\n")
	b.WriteString("IMPORTANT: Answer in the same language as the question.\n")
	return b.String()
}

// BuildSanitizationPrompt renders the content-safety pass applied to the
// final answer before it reaches the user.
func BuildSanitizationPrompt(response string) string {
	var b strings.Builder

	b.WriteString("You are sanitizing a response from an AI assistant to ensure it ")
	b.WriteString("doesn't contain sensitive or inappropriate information.\n\n")
	b.WriteString("Original response:\n")
	b.WriteString(response)
	b.WriteString("\n\n")
	b.WriteString("Your task is to remove or redact the following types of sensitive information:\n")
	b.WriteString("1. Political views, opinions, or discussions\n")
	b.WriteString("2. Sex-related content, innuendos, or explicit discussions\n")
	b.WriteString("3. Personal complaints about relationships, family, or partners\n")
	b.WriteString("4. Private personal information (addresses, phone numbers, etc.)\n")
	b.WriteString("5. Financial information (bank details, salaries, etc.)\n")
	b.WriteString("6. Any content that could be considered private or sensitive\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Replace sensitive content with \"[REDACTED]\" or remove it entirely\n")
	b.WriteString("- Keep the overall structure and helpfulness of the response\n")
	b.WriteString("- Preserve neutral, factual information\n")
	b.WriteString("- Maintain context where possible without revealing sensitive details\n")
	b.WriteString("- If the entire response is sensitive, replace it with \"[REDACTED]\"\n")
	b.WriteString("- Focus on providing helpful, safe information\n\n")
	b.WriteString("Respond with the sanitized response that is safe for users.\n")
	return b.String()
}

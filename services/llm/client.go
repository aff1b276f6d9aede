package llm

import (
	"context"
	"fmt"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

var (
	_ LLMClient = (*GeminiClient)(nil)
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*OllamaClient)(nil)
)

// NewClient builds the backend named by backend: "gemini", "openai", or
// "ollama". A constructor error here means the service cannot answer
// anything and startup should abort.
func NewClient(ctx context.Context, backend string) (LLMClient, error) {
	switch backend {
	case "gemini":
		return NewGeminiClient(ctx)
	case "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q (expected gemini, openai, or ollama)", backend)
	}
}

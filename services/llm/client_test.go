package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// NewClient Tests
// =============================================================================

func TestNewClient_UnknownBackend(t *testing.T) {
	_, err := NewClient(context.Background(), "mystery")
	if err == nil {
		t.Fatal("NewClient() = nil error, want error for unknown backend")
	}
	if !strings.Contains(err.Error(), "mystery") {
		t.Errorf("error %q should name the unknown backend", err)
	}
}

func TestNewClient_OllamaRequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	_, err := NewClient(context.Background(), "ollama")
	if err == nil {
		t.Fatal("NewClient() = nil error, want error without OLLAMA_BASE_URL")
	}
}

// =============================================================================
// OllamaClient Tests
// =============================================================================

func TestOllamaClient_Generate(t *testing.T) {
	var gotRequest ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    gotRequest.Model,
			Response: "Paris.",
			Done:     true,
		})
	}))
	defer server.Close()

	t.Setenv("OLLAMA_BASE_URL", server.URL)
	t.Setenv("OLLAMA_MODEL", "llama3")

	client, err := NewOllamaClient()
	if err != nil {
		t.Fatalf("NewOllamaClient() error: %v", err)
	}

	answer, err := client.Generate(context.Background(), "What is the capital of France?", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if answer != "Paris." {
		t.Errorf("Generate() = %q, want %q", answer, "Paris.")
	}
	if gotRequest.Model != "llama3" {
		t.Errorf("request model = %q, want llama3", gotRequest.Model)
	}
	if gotRequest.Stream {
		t.Error("request should disable streaming")
	}
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "model 'llama3' not found",
		})
	}))
	defer server.Close()

	t.Setenv("OLLAMA_BASE_URL", server.URL)
	t.Setenv("OLLAMA_MODEL", "llama3")

	client, err := NewOllamaClient()
	if err != nil {
		t.Fatalf("NewOllamaClient() error: %v", err)
	}

	_, err = client.Generate(context.Background(), "hello", GenerationParams{})
	if err == nil {
		t.Fatal("Generate() = nil error, want model-not-found error")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("error %q should suggest pulling the model", err)
	}
}

func TestOllamaClient_BuildOptions(t *testing.T) {
	client := &OllamaClient{}

	t.Run("defaults", func(t *testing.T) {
		options := client.buildOptions(GenerationParams{})
		if options["temperature"] != float32(0.2) {
			t.Errorf("temperature = %v, want 0.2", options["temperature"])
		}
		if options["top_k"] != 20 {
			t.Errorf("top_k = %v, want 20", options["top_k"])
		}
		if options["num_predict"] != 8192 {
			t.Errorf("num_predict = %v, want 8192", options["num_predict"])
		}
		if _, ok := options["stop"]; ok {
			t.Error("stop should be absent by default")
		}
	})

	t.Run("overrides", func(t *testing.T) {
		temp := float32(0.7)
		maxTokens := 128
		options := client.buildOptions(GenerationParams{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
			Stop:        []string{"###"},
		})
		if options["temperature"] != temp {
			t.Errorf("temperature = %v, want %v", options["temperature"], temp)
		}
		if options["num_predict"] != maxTokens {
			t.Errorf("num_predict = %v, want %v", options["num_predict"], maxTokens)
		}
		stop, ok := options["stop"].([]string)
		if !ok || len(stop) != 1 {
			t.Errorf("stop = %v, want one entry", options["stop"])
		}
	})
}

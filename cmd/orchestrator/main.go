// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the BiegeAI question-answering HTTP server.
//
// It reads configuration from environment variables (optionally loaded
// from a .env file) and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 8000)
//   - LLM_BACKEND_TYPE: LLM provider - gemini, openai, ollama (default: gemini)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - EMBEDDING_SERVICE_URL: embedding service URL (required for retrieval)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: biegeai-otel-collector:4317)
//   - ENABLE_METRICS: expose /metrics when "true" (default: true)
//   - SANITIZE_ANSWERS: run the content-safety pass when "true"
//   - OPENWEATHER_API_KEY: key for the get_weather tool (optional)
//   - AGENT_WORK_DIR: directory for the file_operations tool
//   - MAX_SESSIONS, SESSION_TIMEOUT_MINUTES, MAX_MESSAGES_PER_SESSION,
//     MAX_CONTEXT_LENGTH: conversation store tuning
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/abie0416/BiegeAI/services/orchestrator"
	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local development keeps its settings in .env; absence is fine in
	// containers where the environment is injected.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	cfg := orchestrator.Config{
		Port:          getEnvInt("ORCHESTRATOR_PORT", 8000),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "gemini"),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		EmbeddingURL:  os.Getenv("EMBEDDING_SERVICE_URL"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "biegeai-otel-collector:4317"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		GinMode:       os.Getenv("GIN_MODE"),
		Sanitize:      getEnvBool("SANITIZE_ANSWERS", false),
		MaxToolCalls:  getEnvInt("MAX_TOOL_CALLS", 5),
		WeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		AgentWorkDir:  os.Getenv("AGENT_WORK_DIR"),
		Conversation: conversation.Config{
			MaxSessions:           getEnvInt("MAX_SESSIONS", 0),
			SessionTimeout:        time.Duration(getEnvInt("SESSION_TIMEOUT_MINUTES", 0)) * time.Minute,
			MaxMessagesPerSession: getEnvInt("MAX_MESSAGES_PER_SESSION", 0),
			MaxContextLength:      getEnvInt("MAX_CONTEXT_LENGTH", 0),
		},
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

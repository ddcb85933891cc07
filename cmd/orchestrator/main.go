// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the AleutianAnswers orchestrator HTTP server.
//
// This is the main entry point for the containerized orchestrator service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12210)
//   - CHAT_MODEL: Chat completion model (default: gpt-4o)
//   - CHAT_DEPLOYMENT: Azure deployment name for CHAT_MODEL (optional)
//   - EMBEDDING_MODEL_NAME: Text embedding model (default: text-embedding-ada-002)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - WEAVIATE_CLASS_NAME: Document class name (default: ContractChunk)
//   - IMAGE_BUCKET: GCS bucket with rendered page images (optional)
//   - IMAGE_EMBEDDING_URL: Image embedding service endpoint (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//   - OPENAI_API_KEY: OpenAI API key (or Podman secret openai_api_key)
//   - OPENAI_BASE_URL: Alternate OpenAI-compatible endpoint (optional)
//   - LOG_LEVEL: debug, info, warn, or error (default: info)
//   - LOG_DIR: Directory for daily log files (optional)
//   - RATE_LIMIT_PER_SECOND: Per-IP refill rate for /v1 routes (default: 5, 0 disables)
//   - RATE_LIMIT_BURST: Per-IP burst capacity (default: 10)
//   - TRUST_PROXY_HEADERS: Set "true" behind a reverse proxy
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianAnswers/pkg/logging"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator"
)

func main() {
	// Setup structured logging. JSON output to stderr matches the log
	// shipper configuration in the compose stack; LOG_DIR additionally
	// writes daily files for deployments without a shipper.
	logger := logging.New(logging.Config{
		Level:   parseLogLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "orchestrator",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:               getEnvInt("ORCHESTRATOR_PORT", 12210),
		Model:              getEnvString("CHAT_MODEL", "gpt-4o"),
		Deployment:         os.Getenv("CHAT_DEPLOYMENT"),
		EmbeddingModel:     getEnvString("EMBEDDING_MODEL_NAME", "text-embedding-ada-002"),
		WeaviateURL:        os.Getenv("WEAVIATE_SERVICE_URL"),
		WeaviateClass:      os.Getenv("WEAVIATE_CLASS_NAME"),
		ImageBucket:        os.Getenv("IMAGE_BUCKET"),
		ImageEmbeddingURL:  os.Getenv("IMAGE_EMBEDDING_URL"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		TrustProxyHeaders:  os.Getenv("TRUST_PROXY_HEADERS") == "true",
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"model", cfg.Model,
		"weaviate_url", cfg.WeaviateURL,
	)

	// Create orchestrator with default (no-op) extension options
	// Enterprise builds will pass custom ServiceOptions here
	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// parseLogLevel maps the LOG_LEVEL environment variable onto a level,
// defaulting to info for unrecognized values.
func parseLogLevel(value string) logging.Level {
	switch strings.ToLower(value) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
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

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

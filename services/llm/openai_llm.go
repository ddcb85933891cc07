// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the OpenAI-backed ChatClient.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client from the environment.
//
// OPENAI_API_KEY is read from the environment, falling back to the
// container secret at /run/secrets/openai_api_key. OPENAI_BASE_URL
// optionally points the client at a compatible gateway.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
		slog.Info("Using custom OpenAI base URL", "url", baseURL)
	}

	return &OpenAIClient{client: openai.NewClientWithConfig(config)}, nil
}

// CreateChatCompletion issues one non-streaming completion call.
func (o *OpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err, "model", req.Model)
		return openai.ChatCompletionResponse{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	return resp, nil
}

// CreateChatCompletionStream opens one streaming completion call.
func (o *OpenAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	req.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Error("OpenAI streaming call failed", "error", err, "model", req.Model)
		return nil, fmt.Errorf("OpenAI streaming call failed: %w", err)
	}
	return stream, nil
}

// Embeddings exposes the embeddings API of the same client.
func (o *OpenAIClient) Embeddings() *openai.Client {
	return o.client
}

var _ ChatClient = (*OpenAIClient)(nil)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnswers/services/llm"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	cfg := Config{}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 12210, result.Port, "default port should be 12210")
	assert.Equal(t, "gpt-4o", result.Model, "default model should be gpt-4o")
	assert.Equal(t, "text-embedding-ada-002", result.EmbeddingModel,
		"default embedding model should be ada-002")
	assert.Equal(t, "aleutian-otel-collector:4317", result.OTelEndpoint,
		"default OTel endpoint should be aleutian-otel-collector:4317")
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values are not
// overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:           8080,
		Model:          "gpt-35-turbo",
		EmbeddingModel: "text-embedding-3-small",
		OTelEndpoint:   "localhost:4317",
		WeaviateURL:    "http://weaviate:8080",
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, "gpt-35-turbo", result.Model)
	assert.Equal(t, "text-embedding-3-small", result.EmbeddingModel)
	assert.Equal(t, "localhost:4317", result.OTelEndpoint)
	assert.Equal(t, "http://weaviate:8080", result.WeaviateURL)
}

// =============================================================================
// Weaviate URL Validation Tests
// =============================================================================

func TestInitWeaviate_RejectsMissingURL(t *testing.T) {
	s := &service{config: applyConfigDefaults(Config{})}

	err := s.initWeaviate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestInitWeaviate_RejectsMalformedURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "weaviate:8080"},
		{"scheme only", "http://"},
		{"garbage", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &service{config: applyConfigDefaults(Config{WeaviateURL: tt.url})}

			err := s.initWeaviate()

			require.Error(t, err)
		})
	}
}

// =============================================================================
// Completion Backend Adapter Tests
// =============================================================================

// fakeChatClient records calls and replays canned results.
type fakeChatClient struct {
	response   openai.ChatCompletionResponse
	streamErr  error
	lastStream bool
}

type fakeChatStream struct{}

func (s *fakeChatStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	return openai.ChatCompletionStreamResponse{}, io.EOF
}

func (s *fakeChatStream) Close() error { return nil }

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f.response, nil
}

func (f *fakeChatClient) CreateChatCompletionStream(_ context.Context, _ openai.ChatCompletionRequest) (llm.ChatStream, error) {
	f.lastStream = true
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeChatStream{}, nil
}

func TestCompletionBackend_PassesThroughCompletion(t *testing.T) {
	client := &fakeChatClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Content: "resposta"},
			}},
		},
	}
	backend := &completionBackend{client: client}

	resp, err := backend.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})

	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "resposta", resp.Choices[0].Message.Content)
}

func TestCompletionBackend_PropagatesStreamError(t *testing.T) {
	client := &fakeChatClient{streamErr: errors.New("upstream unavailable")}
	backend := &completionBackend{client: client}

	stream, err := backend.CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{})

	require.Error(t, err)
	assert.Nil(t, stream)
	assert.True(t, client.lastStream)
}

func TestCompletionBackend_WrapsStream(t *testing.T) {
	client := &fakeChatClient{}
	backend := &completionBackend{client: client}

	stream, err := backend.CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{})

	require.NoError(t, err)
	require.NotNil(t, stream)

	_, recvErr := stream.Recv()
	assert.ErrorIs(t, recvErr, io.EOF)
	assert.NoError(t, stream.Close())
}

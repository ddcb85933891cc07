// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

type fakeEmbeddingClient struct {
	lastInput any
	vector    []float32
}

func (f *fakeEmbeddingClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	req := conv.Convert()
	f.lastInput = req.Input
	return openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: f.vector}},
	}, nil
}

func TestEmbedder_EmbedText(t *testing.T) {
	client := &fakeEmbeddingClient{vector: []float32{0.1, 0.2}}
	embedder := NewEmbedder(EmbedderConfig{OpenAIClient: client, Model: "text-embedding-3-large"})

	vec, err := embedder.EmbedText(context.Background(), "cláusula de rescisão")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, []string{"cláusula de rescisão"}, client.lastInput)
}

func TestEmbedder_EmbedImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req datatypes.EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contrato assinado", req.Text)

		_ = json.NewEncoder(w).Encode(datatypes.EmbeddingResponse{
			Vector: []float32{0.5, 0.6},
			Dim:    2,
		})
	}))
	defer server.Close()

	embedder := NewEmbedder(EmbedderConfig{ImageServiceURL: server.URL})

	vec, err := embedder.EmbedImage(context.Background(), "contrato assinado")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vec)
}

func TestEmbedder_EmbedImage_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewEmbedder(EmbedderConfig{ImageServiceURL: server.URL})

	_, err := embedder.EmbedImage(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestEmbedder_EmbedImage_NotConfigured(t *testing.T) {
	embedder := NewEmbedder(EmbedderConfig{})

	_, err := embedder.EmbedImage(context.Background(), "q")
	assert.Error(t, err)
}

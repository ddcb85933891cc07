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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// EmbeddingClient is the subset of the OpenAI client used for text
// embeddings.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder computes query embeddings for both modalities: text via the
// OpenAI embeddings API, image-space via the standalone embedding service.
type Embedder struct {
	openaiClient EmbeddingClient
	model        openai.EmbeddingModel

	// imageServiceURL is the /embed endpoint of the image-modality
	// embedding service. Empty disables image-space embedding.
	imageServiceURL string
	httpClient      *http.Client
}

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	OpenAIClient    EmbeddingClient
	Model           string
	ImageServiceURL string
}

// NewEmbedder creates an embedder for both query modalities.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	model := cfg.Model
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}
	return &Embedder{
		openaiClient:    cfg.OpenAIClient,
		model:           openai.EmbeddingModel(model),
		imageServiceURL: cfg.ImageServiceURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

// EmbedText embeds the query via the OpenAI embeddings API.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.openaiClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create text embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response carried no data")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedImage embeds the query text into the image vector space via the
// standalone embedding service, enabling cross-modal search over document
// page images.
func (e *Embedder) EmbedImage(ctx context.Context, text string) ([]float32, error) {
	if e.imageServiceURL == "" {
		return nil, fmt.Errorf("image embedding service is not configured")
	}

	body, err := json.Marshal(datatypes.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.imageServiceURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to setup embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach the embedding service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("the embedding service returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embedding datatypes.EmbeddingResponse
	if err := json.Unmarshal(bodyBytes, &embedding); err != nil {
		return nil, fmt.Errorf("failed to parse the embedding service response: %w", err)
	}
	return embedding.Vector, nil
}

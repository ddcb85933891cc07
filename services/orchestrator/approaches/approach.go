// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package approaches implements the conversation-to-answer pipeline: query
// distillation, retrieval orchestration, grounded answer generation, and
// response post-processing.
package approaches

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// =============================================================================
// Retrieval Modes
// =============================================================================

const (
	RetrievalModeText    = "text"
	RetrievalModeVectors = "vectors"
	RetrievalModeHybrid  = "hybrid"
)

// VectorFieldImage selects the image-modality embedding for a vector field.
const VectorFieldImage = "imageEmbedding"

// =============================================================================
// Documents and Search Parameters
// =============================================================================

// Document is one ranked passage returned by the search backend.
// Immutable once returned.
type Document struct {
	ID            string
	Content       string
	Captions      []string
	Score         float64
	RerankerScore float64
	ImagePath     string
}

// QueryVector is one named query embedding forwarded to the search backend.
type QueryVector struct {
	Field  string
	Values []float32
}

// SecurityFilter describes the document visibility constraints for one
// request. The search backend translates it into its native filter syntax.
type SecurityFilter struct {
	ExcludeCategory string
	OIDs            []string
	Groups          []string
}

// SearchParams is the full parameter bundle for one search call.
//
// QueryText is a pointer so the backend can distinguish "no text search
// requested" (nil, vectors-only mode) from an empty search string.
type SearchParams struct {
	Top                 int
	QueryText           *string
	Filter              *SecurityFilter
	Vectors             []QueryVector
	UseSemanticRanker   bool
	UseSemanticCaptions bool
	MinScore            float64
	MinRerankerScore    float64
}

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Searcher is the document search backend. Search returns ranked passages;
// the result may be empty but is never nil on success.
type Searcher interface {
	Search(ctx context.Context, params SearchParams) ([]Document, error)
}

// Embedder computes query embeddings. EmbedImage embeds the query text
// into the image-modality vector space for cross-modal search.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, text string) ([]float32, error)
}

// CompletionStream is the subset of the upstream completion stream the
// pipeline consumes. Recv returns io.EOF at end of stream.
type CompletionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// CompletionService is the chat completion backend.
type CompletionService interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error)
}

// ImageFetcher resolves a document's stored image into a reference the
// model can consume. A missing image is not an error; ok reports whether
// a reference was produced.
type ImageFetcher interface {
	FetchImage(ctx context.Context, doc Document) (ref string, ok bool)
}

// =============================================================================
// Approach
// =============================================================================

// StreamEvent is one element of a streamed response. Err is non-nil on a
// terminal failure; the channel closes after the final event either way.
type StreamEvent struct {
	Delta datatypes.ChatDelta
	Err   error
}

// Approach is one end-to-end answer strategy.
//
// Run produces a complete response in one shot. RunStream returns an
// unbuffered channel of events: the first carries the grounding context,
// subsequent events carry answer increments, and an optional final event
// carries extracted follow-up questions. The channel is closed when the
// stream ends or ctx is cancelled.
type Approach interface {
	Run(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) (datatypes.ChatResponse, error)
	RunStream(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) <-chan StreamEvent
}

// =============================================================================
// Retrieval Orchestration
// =============================================================================

// retrievalFlags reports which search modalities a retrieval mode enables.
// The default (empty) mode is hybrid.
func retrievalFlags(mode string) (hasText, hasVector bool) {
	switch mode {
	case RetrievalModeText:
		return true, false
	case RetrievalModeVectors:
		return false, true
	default:
		return true, true
	}
}

// computeQueryVectors embeds the query for each requested vector field.
// Fields run concurrently; all must complete before the search call.
func computeQueryVectors(ctx context.Context, embedder Embedder, queryText string, fields []string) ([]QueryVector, error) {
	if len(fields) == 0 {
		fields = []string{"embedding"}
	}

	vectors := make([]QueryVector, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range fields {
		g.Go(func() error {
			var (
				values []float32
				err    error
			)
			if field == VectorFieldImage {
				values, err = embedder.EmbedImage(gctx, queryText)
			} else {
				values, err = embedder.EmbedText(gctx, queryText)
			}
			if err != nil {
				return err
			}
			vectors[i] = QueryVector{Field: field, Values: values}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// buildSearchParams shapes the per-request overrides into the search
// parameter bundle, computing embeddings when the mode calls for them.
func buildSearchParams(ctx context.Context, embedder Embedder, queryText string, overrides datatypes.Overrides, filter *SecurityFilter) (SearchParams, error) {
	hasText, hasVector := retrievalFlags(overrides.RetrievalMode)

	params := SearchParams{
		Top:                 overrides.Top,
		Filter:              filter,
		UseSemanticRanker:   overrides.SemanticRanker,
		UseSemanticCaptions: overrides.SemanticCaptions,
		MinScore:            overrides.MinimumSearchScore,
		MinRerankerScore:    overrides.MinimumRerankerScore,
	}
	if params.Top <= 0 {
		params.Top = 3
	}

	if hasVector {
		vectors, err := computeQueryVectors(ctx, embedder, queryText, overrides.VectorFields)
		if err != nil {
			return SearchParams{}, err
		}
		params.Vectors = vectors
	}
	if hasText {
		params.QueryText = &queryText
	}
	return params, nil
}

// =============================================================================
// Source Rendering
// =============================================================================

// sanitizeSourceLine flattens newlines and swaps square brackets for their
// fullwidth forms so rendered sources cannot collide with the [citation]
// syntax the model is told to emit.
func sanitizeSourceLine(s string) string {
	r := strings.NewReplacer("\n", " ", "\r", " ", "[", "【", "]", "】")
	return r.Replace(s)
}

// renderSources turns ranked documents into citation-tagged lines of the
// form "<id>: <content>". With semantic captions enabled, the caption
// fragments stand in for the full passage text; a document without
// captions falls back to its content so the model never sees a bare
// citation tag.
func renderSources(docs []Document, useSemanticCaptions bool) []string {
	lines := make([]string, 0, len(docs))
	for _, doc := range docs {
		text := doc.Content
		if useSemanticCaptions && len(doc.Captions) > 0 {
			text = strings.Join(doc.Captions, " . ")
		}
		lines = append(lines, doc.ID+": "+sanitizeSourceLine(text))
	}
	return lines
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval adapts the Weaviate document index and the embedding
// backends to the interfaces the answer pipeline consumes.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.ai/orchestrator/retrieval")

// DefaultClassName is the Weaviate class holding indexed contract passages.
const DefaultClassName = "ContractChunk"

// SearcherConfig configures a WeaviateSearcher.
type SearcherConfig struct {
	// ClassName is the Weaviate class to query. Defaults to ContractChunk.
	ClassName string

	// HybridAlpha balances lexical and vector signal in hybrid mode.
	// 0 is pure BM25, 1 is pure vector. Defaults to 0.5.
	HybridAlpha float32
}

// WeaviateSearcher executes lexical, vector, and hybrid searches against
// the contract index.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type WeaviateSearcher struct {
	client *weaviate.Client
	config SearcherConfig
	log    *slog.Logger
}

// NewWeaviateSearcher creates a searcher over the contract index.
func NewWeaviateSearcher(client *weaviate.Client, config SearcherConfig, logger *slog.Logger) *WeaviateSearcher {
	if config.ClassName == "" {
		config.ClassName = DefaultClassName
	}
	if config.HybridAlpha == 0 {
		config.HybridAlpha = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateSearcher{client: client, config: config, log: logger}
}

// Search runs one retrieval pass.
//
// # Description
//
// The query shape follows the requested modalities: text only runs BM25,
// vectors only runs nearVector, and both together run a hybrid query.
// When several query vectors are supplied (multi-field search), one query
// per vector runs concurrently and the merged results keep each passage's
// best score. Score floors are applied after parsing; Weaviate does not
// enforce them server side.
func (s *WeaviateSearcher) Search(ctx context.Context, params approaches.SearchParams) ([]approaches.Document, error) {
	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	if params.QueryText == nil && len(params.Vectors) == 0 {
		return nil, fmt.Errorf("search requires a text query or at least one vector")
	}

	if len(params.Vectors) <= 1 {
		docs, err := s.searchOnce(ctx, params, firstVector(params.Vectors))
		if err != nil {
			return nil, err
		}
		return s.applyFloors(docs, params), nil
	}

	// One query per vector field, merged by passage identity.
	results := make([][]approaches.Document, len(params.Vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, vec := range params.Vectors {
		g.Go(func() error {
			docs, err := s.searchOnce(gctx, params, &vec)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeByBestScore(results, params.Top)
	return s.applyFloors(merged, params), nil
}

func firstVector(vectors []approaches.QueryVector) *approaches.QueryVector {
	if len(vectors) == 0 {
		return nil
	}
	return &vectors[0]
}

// searchFields builds the GraphQL field selection for one query. With the
// semantic ranker enabled, _additional also requests the rerank module
// scored against the text query; vector-only searches skip it since the
// module needs text to score against.
func searchFields(params approaches.SearchParams) []graphql.Field {
	additional := []graphql.Field{
		{Name: "id"},
		{Name: "score"},
		{Name: "certainty"},
	}
	if params.UseSemanticRanker && params.QueryText != nil {
		additional = append(additional, graphql.Field{
			Name:   fmt.Sprintf("rerank(property: \"content\", query: %s)", strconv.Quote(*params.QueryText)),
			Fields: []graphql.Field{{Name: "score"}},
		})
	}

	return []graphql.Field{
		{Name: "content"},
		{Name: "sourcepage"},
		{Name: "sourcefile"},
		{Name: "category"},
		{Name: "image_path"},
		{Name: "_additional", Fields: additional},
	}
}

// searchOnce issues a single GraphQL query for one modality combination.
func (s *WeaviateSearcher) searchOnce(ctx context.Context, params approaches.SearchParams, vector *approaches.QueryVector) ([]approaches.Document, error) {
	fields := searchFields(params)

	query := s.client.GraphQL().Get().
		WithClassName(s.config.ClassName).
		WithFields(fields...).
		WithLimit(params.Top)

	if where := buildWhere(params.Filter); where != nil {
		query = query.WithWhere(where)
	}

	switch {
	case params.QueryText != nil && vector != nil:
		hybrid := s.client.GraphQL().HybridArgumentBuilder().
			WithQuery(*params.QueryText).
			WithVector(vector.Values).
			WithAlpha(s.config.HybridAlpha)
		query = query.WithHybrid(hybrid)
	case vector != nil:
		near := s.client.GraphQL().NearVectorArgBuilder().
			WithVector(vector.Values)
		query = query.WithNearVector(near)
	default:
		bm25 := s.client.GraphQL().Bm25ArgBuilder().
			WithQuery(*params.QueryText)
		query = query.WithBM25(bm25)
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ContractChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	docs := make([]approaches.Document, 0, len(parsed.Get.ContractChunk))
	for _, chunk := range parsed.Get.ContractChunk {
		docs = append(docs, chunkToDocument(chunk))
	}
	s.log.DebugContext(ctx, "search pass complete", "class", s.config.ClassName, "results", len(docs))
	return docs, nil
}

// buildWhere translates the visibility filter into Weaviate operands.
// Returns nil when the request filters nothing.
func buildWhere(filter *approaches.SecurityFilter) *filters.WhereBuilder {
	if filter == nil {
		return nil
	}

	var operands []*filters.WhereBuilder
	if filter.ExcludeCategory != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.NotEqual).
			WithValueString(filter.ExcludeCategory))
	}
	if len(filter.OIDs) > 0 {
		operands = append(operands, anyOf("oids", filter.OIDs))
	}
	if len(filter.Groups) > 0 {
		operands = append(operands, anyOf("groups", filter.Groups))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// anyOf matches documents whose array property contains any given value.
func anyOf(path string, values []string) *filters.WhereBuilder {
	if len(values) == 1 {
		return filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueString(values[0])
	}
	operands := make([]*filters.WhereBuilder, len(values))
	for i, v := range values {
		operands[i] = filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueString(v)
	}
	return filters.Where().
		WithOperator(filters.Or).
		WithOperands(operands)
}

// chunkToDocument converts a parsed index entry into a pipeline document.
// Score falls back to certainty when the search mode produced no score.
func chunkToDocument(chunk datatypes.ContractChunkResult) approaches.Document {
	score := 0.0
	if chunk.Additional.Score != "" {
		if parsed, err := strconv.ParseFloat(chunk.Additional.Score, 64); err == nil {
			score = parsed
		}
	} else if chunk.Additional.Certainty != nil {
		score = float64(*chunk.Additional.Certainty)
	}

	id := chunk.SourcePage
	if id == "" {
		id = chunk.SourceFile
	}

	doc := approaches.Document{
		ID:        id,
		Content:   chunk.Content,
		Score:     score,
		ImagePath: chunk.ImagePath,
	}
	if len(chunk.Additional.Rerank) > 0 && chunk.Additional.Rerank[0].Score != nil {
		doc.RerankerScore = *chunk.Additional.Rerank[0].Score
	}
	return doc
}

// applyFloors drops results below the configured score thresholds.
func (s *WeaviateSearcher) applyFloors(docs []approaches.Document, params approaches.SearchParams) []approaches.Document {
	kept := docs[:0]
	for _, doc := range docs {
		if params.MinScore > 0 && doc.Score < params.MinScore {
			continue
		}
		if params.MinRerankerScore > 0 && doc.RerankerScore != 0 && doc.RerankerScore < params.MinRerankerScore {
			continue
		}
		kept = append(kept, doc)
	}
	return kept
}

// mergeByBestScore deduplicates per-vector result sets, keeping each
// passage's best score, ordered best first.
func mergeByBestScore(results [][]approaches.Document, top int) []approaches.Document {
	best := make(map[string]approaches.Document)
	for _, docs := range results {
		for _, doc := range docs {
			if existing, ok := best[doc.ID]; !ok || doc.Score > existing.Score {
				best[doc.ID] = doc
			}
		}
	}

	merged := make([]approaches.Document, 0, len(best))
	for _, doc := range best {
		merged = append(merged, doc)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if top > 0 && len(merged) > top {
		merged = merged[:top]
	}
	return merged
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parsing
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Weaviate's Go client returns GraphQL results as models.GraphQLResponse with
// untyped map data. This helper marshals the Data field back to JSON and
// unmarshals it into a caller-supplied typed structure, keeping field access
// compile-checked at the call sites.
//
// # Inputs
//
//   - resp: The raw GraphQL response from the Weaviate client.
//
// # Outputs
//
//   - *T: Parsed response of the target type.
//   - error: Non-nil if the response is nil or cannot be converted.
//
// # Example
//
//	result, err := client.GraphQL().Get().
//	    WithClassName("ContractChunk").
//	    WithFields(fields...).
//	    Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[ContractChunkQueryResponse](result)
//	if err != nil { ... }
//
//	for _, c := range parsed.Get.ContractChunk {
//	    fmt.Println(c.SourcePage)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
//
// # Assumptions
//
//   - The response Data field is JSON-marshalable.
//   - The target type T has correct json tags.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// ContractChunkQueryResponse represents the response from querying the
// ContractChunk class.
//
// # Fields
//
//   - Get.ContractChunk: Array of indexed contract passages.
type ContractChunkQueryResponse struct {
	Get struct {
		ContractChunk []ContractChunkResult `json:"ContractChunk"`
	} `json:"Get"`
}

// ContractChunkResult represents a single indexed passage from a query.
//
// Score arrives as a string in _additional (Weaviate quirk); certainty and
// distance are pointers because not every search mode populates them.
// Rerank is populated only when the query requested the rerank module.
type ContractChunkResult struct {
	Content    string   `json:"content"`
	SourcePage string   `json:"sourcepage"`
	SourceFile string   `json:"sourcefile"`
	Category   string   `json:"category"`
	ImagePath  string   `json:"image_path"`
	Oids       []string `json:"oids"`
	Groups     []string `json:"groups"`
	Additional struct {
		ID        string        `json:"id"`
		Score     string        `json:"score"`
		Distance  *float32      `json:"distance"`
		Certainty *float32      `json:"certainty"`
		Rerank    []RerankEntry `json:"rerank"`
	} `json:"_additional"`
}

// RerankEntry is one rerank module result attached to a passage.
type RerankEntry struct {
	Score *float64 `json:"score"`
}

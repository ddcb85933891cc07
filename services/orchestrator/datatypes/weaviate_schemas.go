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
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetContractChunkSchema describes the document chunk class the retrieval
// layer searches. Chunks are ingested with externally computed vectors (one
// text embedding, optionally one image embedding for scanned pages), so the
// class itself has no vectorizer.
func GetContractChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "ContractChunk",
		Description: "A chunk of an indexed contract page with its provenance and access labels.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			Bm25:                   nil,
			CleanupIntervalSeconds: 0,
			IndexNullState:         true,
			IndexPropertyLength:    false,
			IndexTimestamps:        true,
			Stopwords:              nil,
			UsingBlockMaxWAND:      false,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk's extracted text.",
				Tokenization: "word",
			},
			{
				Name:            "sourcepage",
				DataType:        []string{"text"},
				Description:     "The page-level citation id (e.g. 'contrato1.pdf#page=2').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "sourcefile",
				DataType:        []string{"text"},
				Description:     "The original file this chunk came from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Document category used for exclude-category filtering.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "image_path",
				DataType:        []string{"text"},
				Description:     "Object storage path of the rendered page image, if any.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "oids",
				DataType:        []string{"text[]"},
				Description:     "User object ids allowed to see this chunk. Empty means public.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "groups",
				DataType:        []string{"text[]"},
				Description:     "Group ids allowed to see this chunk. Empty means public.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing classes at startup.
func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetContractChunkSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// Check if the class already exists.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// If it doesn't exist, the client returns an error. We can now create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}

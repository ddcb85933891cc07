// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package images resolves document page images from object storage into
// data URLs the answer model can consume.
package images

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
)

// maxImageBytes caps how large a page image may be before it is skipped.
const maxImageBytes = 4 << 20 // 4MB

// GCSImageFetcher loads page images from a Cloud Storage bucket.
//
// Fetch failures are soft: a document without a readable image simply
// contributes no image to the prompt.
type GCSImageFetcher struct {
	bucket *storage.BucketHandle
	log    *slog.Logger
}

// NewGCSImageFetcher creates a fetcher over the given bucket.
func NewGCSImageFetcher(client *storage.Client, bucketName string, logger *slog.Logger) *GCSImageFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSImageFetcher{
		bucket: client.Bucket(bucketName),
		log:    logger,
	}
}

// FetchImage downloads the document's page image and returns it as a
// base64 data URL. ok is false when the document has no image or the
// object cannot be read.
func (f *GCSImageFetcher) FetchImage(ctx context.Context, doc approaches.Document) (string, bool) {
	if doc.ImagePath == "" {
		return "", false
	}

	reader, err := f.bucket.Object(doc.ImagePath).NewReader(ctx)
	if err != nil {
		f.log.DebugContext(ctx, "page image unavailable", "object", doc.ImagePath, "error", err)
		return "", false
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxImageBytes+1))
	if err != nil {
		f.log.WarnContext(ctx, "failed reading page image", "object", doc.ImagePath, "error", err)
		return "", false
	}
	if len(data) > maxImageBytes {
		f.log.WarnContext(ctx, "page image exceeds size cap, skipping", "object", doc.ImagePath)
		return "", false
	}

	return "data:" + contentType(doc.ImagePath) + ";base64," + base64.StdEncoding.EncodeToString(data), true
}

// contentType infers the MIME type from the object name extension.
func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	default:
		return "image/png"
	}
}

var _ approaches.ImageFetcher = (*GCSImageFetcher)(nil)

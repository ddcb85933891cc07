// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"time"
)

// HTTPHeaders is a header map for audit capture.
type HTTPHeaders map[string]string

// Get retrieves a header value by key (case-sensitive).
func (h HTTPHeaders) Get(key string) string {
	return h[key]
}

// Set adds or updates a header value.
func (h HTTPHeaders) Set(key, value string) {
	h[key] = value
}

// AuditableRequest is the raw inbound request handed to CaptureRequest.
//
// The guards build it from the request body they already buffered, so
// implementations see exactly the bytes the handler parsed. Hashing and
// encryption of the body are the implementation's job; the service
// itself computes nothing.
type AuditableRequest struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path, e.g. "/v1/chat".
	Path string

	// Headers are the request headers. The caller strips
	// Authorization before capture.
	Headers HTTPHeaders

	// Body is the raw request body.
	Body []byte

	// UserID is the authenticated caller.
	UserID string

	// SessionID is the conversation session, when one exists.
	SessionID string

	// RequestID uniquely identifies this request.
	RequestID string

	// Timestamp is when the request arrived, in UTC.
	Timestamp time.Time
}

// AuditableResponse is the raw outbound answer handed to CaptureResponse.
//
// For streamed answers the handler accumulates every NDJSON line and
// captures the concatenation once the stream closes, so the record
// holds the full answer rather than the first chunk.
type AuditableResponse struct {
	// StatusCode is the HTTP status sent to the client.
	StatusCode int

	// Headers are the response headers.
	Headers HTTPHeaders

	// Body is the raw response body; for streams, all chunks joined.
	Body []byte

	// Timestamp is when the response completed, in UTC.
	Timestamp time.Time
}

// RequestAuditor captures raw request/response pairs for retention.
//
// CaptureRequest runs before the pipeline and returns an opaque audit
// ID; CaptureResponse runs after the answer (or the end of the stream)
// and links back through that ID. The guards discard both errors, so a
// failing audit backend degrades the trail without failing requests.
//
// The default NopRequestAuditor keeps nothing. Deployments that need a
// retention trail plug in an implementation backed by append-only
// storage.
//
// Implementations must be safe for concurrent use.
type RequestAuditor interface {
	// CaptureRequest records the inbound request and returns the ID
	// that ties the eventual response to it.
	CaptureRequest(ctx context.Context, req *AuditableRequest) (auditID string, err error)

	// CaptureResponse completes the record started by CaptureRequest.
	CaptureResponse(ctx context.Context, auditID string, resp *AuditableResponse) error
}

// NopRequestAuditor accepts captures without storing them. It is the
// default when no retention backend is configured.
type NopRequestAuditor struct{}

// CaptureRequest discards the request and returns an empty audit ID.
func (a *NopRequestAuditor) CaptureRequest(_ context.Context, _ *AuditableRequest) (string, error) {
	return "", nil
}

// CaptureResponse discards the response.
func (a *NopRequestAuditor) CaptureResponse(_ context.Context, _ string, _ *AuditableResponse) error {
	return nil
}

var _ RequestAuditor = (*NopRequestAuditor)(nil)

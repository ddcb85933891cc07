// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamWriter writes newline-delimited JSON chat events to an HTTP response.
//
// # Description
//
// StreamWriter provides the wire protocol for streamed chat answers. Each
// event is a single JSON object followed by a newline:
//
//	{"choices":[{"index":0,"delta":{"content":"Hello"}}]}
//	{"choices":[{"index":0,"delta":{"content":" world"}}]}
//
// Errors are reported in-band as their own line, since the HTTP status has
// already been committed by the time they occur:
//
//	{"error":"chat request failed"}
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The chat producer and a
// keep-alive ticker may write from different goroutines.
type StreamWriter interface {
	// WriteDelta writes one chat delta as an NDJSON line and flushes it.
	WriteDelta(delta datatypes.ChatDelta) error

	// WriteError writes an in-band error line and flushes it.
	//
	// The message must already be sanitized for client display; internal
	// error details never go on the wire.
	WriteError(message string) error

	// WriteKeepAlive writes an empty JSON object line to keep intermediate
	// proxies from timing out an idle connection.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// ndjsonWriter implements StreamWriter over an http.ResponseWriter.
//
// # Fields
//
//   - writer: Underlying http.ResponseWriter
//   - flusher: http.Flusher interface for immediate send
//   - mu: Mutex for thread-safe writes
//
// # Limitations
//
//   - Cannot be reused across requests
//
// # Assumptions
//
//   - Response headers already set by caller (see SetStreamHeaders)
//   - ResponseWriter supports http.Flusher
type ndjsonWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamWriter creates a StreamWriter for the given ResponseWriter.
//
// # Description
//
// Wraps the ResponseWriter for NDJSON streaming. The caller must set the
// streaming headers first via SetStreamHeaders.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - StreamWriter: Ready to write NDJSON events.
//   - error: Non-nil if the ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetStreamHeaders(w)
//	writer, err := NewStreamWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteDelta(datatypes.NewContentDelta("Hello"))
func NewStreamWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &ndjsonWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteDelta writes one chat delta as an NDJSON line and flushes it.
func (w *ndjsonWriter) WriteDelta(delta datatypes.ChatDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	return w.writeLine(data)
}

// WriteError writes an in-band error line and flushes it.
func (w *ndjsonWriter) WriteError(message string) error {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Errorf("marshal error line: %w", err)
	}
	return w.writeLine(data)
}

// WriteKeepAlive writes an empty JSON object line.
//
// Clients skip lines without a "choices" field, so the ping is invisible to
// consumers but resets load balancer timeout counters.
func (w *ndjsonWriter) WriteKeepAlive() error {
	return w.writeLine([]byte("{}"))
}

// writeLine appends a newline, writes under the mutex, and flushes.
func (w *ndjsonWriter) writeLine(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "%s\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetStreamHeaders configures HTTP response headers for NDJSON streaming.
//
// # Description
//
// Sets the required headers for line-delimited streaming:
//   - Content-Type: application/x-ndjson
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamWriter = (*ndjsonWriter)(nil)

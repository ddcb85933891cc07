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
	"errors"
)

// ErrMessageBlocked is the sentinel a caller surfaces to the user after
// a filter sets WasBlocked. Implementations wrap it with the reason.
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is the outcome of one filter pass over a message.
//
// A filter either transforms (Filtered differs from Original and
// WasModified is true) or blocks (WasBlocked is true and Filtered must
// not be used). Detections record what was found either way, so the
// audit trail can explain the decision.
type FilterResult struct {
	// Original is the input before filtering.
	Original string

	// Filtered is the input after transformation. Equals Original
	// when WasModified is false.
	Filtered string

	// WasModified reports whether the content was changed.
	WasModified bool

	// WasBlocked reports that the message was rejected outright.
	WasBlocked bool

	// BlockReason explains the rejection when WasBlocked is set.
	BlockReason string

	// Detections lists what the filter found.
	Detections []Detection
}

// Detection is one item a filter found in a message.
type Detection struct {
	// Type names what was detected, e.g. "aws_access_key", "pii".
	Type string

	// Location says where, in implementation-specific form
	// ("line 3", "characters 10-20").
	Location string

	// Action is what was done: "redacted", "blocked", or "flagged".
	Action string

	// Original is the matched content. Populated only in debug
	// setups; it can carry the sensitive value itself.
	Original string

	// Replacement is the substituted text when Action is "redacted".
	Replacement string
}

// MessageFilter screens content at the three points it crosses the
// trust boundary of an answer request:
//
//   - FilterInput: the user's question, before query distillation
//   - FilterOutput: the generated answer, before it reaches the client
//   - FilterContext: retrieved source text, before prompt injection
//
// The chat and ask handlers call FilterInput on the final user turn and
// refuse the request when the result is blocked. Implementations must
// be safe for concurrent use.
//
// The default NopMessageFilter passes everything through, which suits a
// local single-user deployment. The policy engine provides a pattern
// based implementation for deployments that need one.
type MessageFilter interface {
	// FilterInput screens a user message before retrieval and
	// inference. The error is for filter failures only; a block is
	// reported through the result.
	FilterInput(ctx context.Context, message string) (*FilterResult, error)

	// FilterOutput screens a generated answer before delivery.
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)

	// FilterContext screens retrieved source content before it is
	// injected into the prompt.
	FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error)
}

// NopMessageFilter passes all content through unchanged. It is the
// default when no content policy is configured.
type NopMessageFilter struct{}

// FilterInput returns the message unchanged.
func (f *NopMessageFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterOutput returns the message unchanged.
func (f *NopMessageFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterContext returns the context unchanged.
func (f *NopMessageFilter) FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error) {
	return &FilterResult{Original: contextMsg, Filtered: contextMsg}, nil
}

var _ MessageFilter = (*NopMessageFilter)(nil)

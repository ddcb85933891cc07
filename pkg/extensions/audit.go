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

// AuditEvent is one security-relevant event in the compliance trail.
//
// The request guards emit these around every answer request:
//
//   - "authz.denied"  when the authorization provider rejects the caller
//   - "chat.blocked"  when the inbound content filter blocks a message
//   - "chat.answer"   when a request completes, with the outcome
//
// EventType follows "category.action". UserID and Timestamp must always
// be set; they anchor right-to-know lookups and trail integrity.
type AuditEvent struct {
	// EventType categorizes the event, e.g. "authz.denied".
	EventType string

	// Timestamp is when the event occurred, in UTC.
	Timestamp time.Time

	// UserID is who performed the action. "anonymous" if unknown.
	UserID string

	// Action is the operation attempted, e.g. "send".
	Action string

	// ResourceType is the resource category, e.g. "chat".
	ResourceType string

	// ResourceID is the specific resource instance, when one exists.
	ResourceID string

	// Outcome is "success", "failure", "blocked", or "denied".
	Outcome string

	// Metadata holds event-specific detail: "reason" for denials,
	// "processing_ms" for completed answers.
	Metadata map[string]any
}

// AuditFilter selects audit events in Query. Zero-valued fields are
// ignored; populated fields combine with AND.
type AuditFilter struct {
	// EventTypes limits results to the listed event types.
	EventTypes []string

	// UserID limits results to one user's events.
	UserID string

	// StartTime is the earliest timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest timestamp to include (exclusive).
	EndTime time.Time

	// ResourceType limits results to one resource category.
	ResourceType string

	// ResourceID limits results to one resource instance.
	ResourceID string

	// Outcome limits results to one outcome value.
	Outcome string

	// Limit caps the result count; zero means implementation default.
	Limit int

	// Offset skips leading results for pagination.
	Offset int
}

// AuditLogger records audit events. Implementations must be safe for
// concurrent use, and Log must return quickly: the guards call it
// inline on the request path and discard its error.
//
// The default NopAuditLogger discards everything, which is fine for a
// local single-user deployment. Deployments with compliance needs plug
// in an implementation that writes to their SIEM or audit store.
type AuditLogger interface {
	// Log records one event. Implementations set Timestamp when zero.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists any buffered events. Called before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events. It is the default when no audit
// backend is configured.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query returns no events; nothing is stored.
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)

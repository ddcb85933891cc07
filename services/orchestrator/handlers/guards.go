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
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
)

// =============================================================================
// Enterprise Request Guards
// =============================================================================

// requestGuard runs the enterprise extension points that every answer
// endpoint shares: authorization, inbound message filtering, and raw
// request/response capture for compliance audit. The open source defaults
// (NopAuthzProvider, NopMessageFilter, NopRequestAuditor) make all of this
// a no-op for local deployments.
type requestGuard struct {
	opts       extensions.ServiceOptions
	endpoint   observability.Endpoint
	resourceID string
	userID     string
	auditID    string
	started    time.Time
}

// newRequestGuard authorizes the caller and captures the inbound request.
//
// # Description
//
// Reads the caller's identity from the request context (placed there by the
// auth middleware), asks the AuthzProvider whether this identity may run the
// endpoint, and hands the request body to the RequestAuditor. On denial it
// writes the 403 response and logs an authz.denied audit event itself;
// callers must return immediately when ok is false.
//
// # Inputs
//
//   - c: The gin request context.
//   - opts: Enterprise extension points. Zero-value Nop implementations are
//     not acceptable here; use extensions.DefaultOptions().
//   - endpoint: Metrics label for this endpoint.
//   - resourceID: Authorization resource identifier (e.g. "chat/stream").
//   - body: The request body as bound, re-marshaled for audit capture.
//
// # Outputs
//
//   - *requestGuard: Guard carrying the audit handle, valid when ok is true.
//   - bool: False when the request was denied and a response already written.
func newRequestGuard(c *gin.Context, opts extensions.ServiceOptions, endpoint observability.Endpoint, resourceID string, body []byte) (*requestGuard, bool) {
	ctx := c.Request.Context()

	userID := "anonymous"
	authInfo := extensions.AuthInfoFromContext(ctx)
	if authInfo != nil {
		userID = authInfo.UserID
	}

	g := &requestGuard{
		opts:       opts,
		endpoint:   endpoint,
		resourceID: resourceID,
		userID:     userID,
		started:    time.Now().UTC(),
	}

	if err := opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
		User:         authInfo,
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   resourceID,
	}); err != nil {
		_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "authz.denied",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   resourceID,
			Outcome:      "denied",
			Metadata:     map[string]any{"reason": err.Error()},
		})
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	}

	g.auditID, _ = opts.RequestAuditor.CaptureRequest(ctx, &extensions.AuditableRequest{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Headers:   extractHeaders(c),
		Body:      body,
		UserID:    userID,
		Timestamp: g.started,
	})
	return g, true
}

// filterLastUserMessage runs the inbound MessageFilter over the final user
// turn, rewriting it in place when the filter redacts content. On a blocked
// message it writes the 403 response and audit event itself; callers must
// return immediately when the result is false.
func (g *requestGuard) filterLastUserMessage(c *gin.Context, messages []datatypes.Message) bool {
	ctx := c.Request.Context()

	lastIdx := len(messages) - 1
	if lastIdx < 0 || messages[lastIdx].Role != datatypes.RoleUser {
		return true
	}

	result, err := g.opts.MessageFilter.FilterInput(ctx, messages[lastIdx].Content)
	if err != nil {
		slog.Error("Message filter failed", "error", err, "userId", g.userID)
		recordError(g.endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "message processing failed"})
		return false
	}
	if result.WasBlocked {
		_ = g.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       g.userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   g.resourceID,
			Outcome:      "blocked",
			Metadata:     map[string]any{"reason": result.BlockReason},
		})
		recordError(g.endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusForbidden, gin.H{"error": "Message blocked by content filter", "reason": result.BlockReason})
		return false
	}
	if result.WasModified {
		messages[lastIdx].Content = result.Filtered
	}
	return true
}

// finish completes the audit record with the response and logs the outcome.
func (g *requestGuard) finish(ctx context.Context, statusCode int, contentType string, body []byte, outcome string) {
	_ = g.opts.RequestAuditor.CaptureResponse(ctx, g.auditID, &extensions.AuditableResponse{
		StatusCode: statusCode,
		Headers:    extensions.HTTPHeaders{"Content-Type": contentType},
		Body:       body,
		Timestamp:  time.Now().UTC(),
	})
	_ = g.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "chat.answer",
		Timestamp:    time.Now().UTC(),
		UserID:       g.userID,
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   g.resourceID,
		Outcome:      outcome,
		Metadata: map[string]any{
			"processing_ms": time.Since(g.started).Milliseconds(),
		},
	})
}

// extractHeaders copies the request headers for audit capture, redacting
// credentials so they never reach enterprise audit storage.
func extractHeaders(c *gin.Context) extensions.HTTPHeaders {
	headers := make(extensions.HTTPHeaders, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		if strings.EqualFold(name, "Authorization") || strings.EqualFold(name, "Cookie") {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = values[0]
	}
	return headers
}

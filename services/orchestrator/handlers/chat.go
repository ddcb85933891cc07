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
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
)

var chatTracer = otel.Tracer("aleutian.orchestrator.handlers")

// clientErrorMessage is the sanitized message sent to clients when the
// pipeline fails. Internal details stay in logs and spans only.
const clientErrorMessage = "The chat request could not be completed. Please try again."

// HandleChatRequest serves POST /v1/chat.
//
// # Description
//
// Binds and validates a ChatRequest, then dispatches to the conversational
// approach. When request.Stream is false the full answer is returned as a
// single JSON ChatResponse. When it is true the response is streamed as
// newline-delimited JSON ChatDelta lines; errors after the first line are
// reported in-band because the status code is already committed.
//
// # Inputs
//
//   - approach: The conversational pipeline to run. Must not be nil.
//   - opts: Enterprise extension points (authz, audit, message filter).
//
// # Outputs
//
//   - gin.HandlerFunc: Handler ready for route registration.
func HandleChatRequest(approach approaches.Approach, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatRequest")
		defer span.End()

		var request datatypes.ChatRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind chat request JSON", "error", err)
			recordError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Rejected invalid chat request", "error", err)
			recordError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(
			attribute.Bool("chat.stream", request.Stream),
			attribute.Int("chat.messages", len(request.Messages)),
		)

		rawBody, _ := json.Marshal(request)
		resourceID := "chat"
		if request.Stream {
			resourceID = "chat/stream"
		}
		guard, ok := newRequestGuard(c, opts, chatEndpoint(request.Stream), resourceID, rawBody)
		if !ok {
			return
		}
		if !guard.filterLastUserMessage(c, request.Messages) {
			return
		}

		if !request.Stream {
			resp, err := approach.Run(ctx, request.Messages, request.Context.Overrides, request.SessionState)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				slog.Error("Chat approach failed", "error", err)
				recordRequest(observability.EndpointChat, false)
				recordError(observability.EndpointChat, observability.ErrorCodePipeline)
				guard.finish(ctx, http.StatusInternalServerError, "application/json", nil, "error")
				c.JSON(http.StatusInternalServerError, gin.H{"error": clientErrorMessage})
				return
			}
			recordRequest(observability.EndpointChat, true)
			if len(resp.Choices) > 0 {
				recordRetrievedDocuments(observability.EndpointChat, len(resp.Choices[0].Context.DataPoints.Text))
			}
			respBody, _ := json.Marshal(resp)
			guard.finish(ctx, http.StatusOK, "application/json", respBody, "success")
			c.JSON(http.StatusOK, resp)
			return
		}

		streamChatResponse(ctx, c, approach, request, guard)
	}
}

// chatEndpoint maps the stream flag onto the metrics endpoint label.
func chatEndpoint(stream bool) observability.Endpoint {
	if stream {
		return observability.EndpointChatStream
	}
	return observability.EndpointChat
}

// streamChatResponse pumps the approach's event stream onto the wire.
//
// The producer goroutine behind RunStream watches ctx, which the HTTP server
// cancels when the client goes away, so abandoning the loop on a write error
// does not leak the producer.
func streamChatResponse(ctx context.Context, c *gin.Context, approach approaches.Approach, request datatypes.ChatRequest, guard *requestGuard) {
	span := trace.SpanFromContext(ctx)

	SetStreamHeaders(c.Writer)
	writer, err := NewStreamWriter(c.Writer)
	if err != nil {
		slog.Error("Streaming unsupported by response writer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	recordStreamStarted(observability.EndpointChatStream)
	started := time.Now()
	firstDelta := true
	success := true
	var answer strings.Builder

	defer func() {
		recordStreamEnded(observability.EndpointChatStream)
		recordStreamDuration(observability.EndpointChatStream, time.Since(started).Seconds(), success)
		recordRequest(observability.EndpointChatStream, success)
		outcome := "success"
		if !success {
			outcome = "error"
		}
		guard.finish(ctx, http.StatusOK, "application/x-ndjson", []byte(answer.String()), outcome)
	}()

	for event := range approach.RunStream(ctx, request.Messages, request.Context.Overrides, request.SessionState) {
		if event.Err != nil {
			span.RecordError(event.Err)
			span.SetStatus(codes.Error, event.Err.Error())
			slog.Error("Chat stream failed", "error", event.Err)
			recordError(observability.EndpointChatStream, observability.ErrorCodePipeline)
			success = false
			// Status is committed; report in-band and stop.
			if werr := writer.WriteError(clientErrorMessage); werr != nil {
				slog.Warn("Failed to write stream error line", "error", werr)
			}
			return
		}
		if firstDelta {
			recordTimeToFirstDelta(observability.EndpointChatStream, time.Since(started).Seconds())
			firstDelta = false
		}
		if werr := writer.WriteDelta(event.Delta); werr != nil {
			slog.Info("Client disconnected during chat stream", "error", werr)
			recordClientDisconnect(observability.EndpointChatStream)
			success = false
			return
		}
		if len(event.Delta.Choices) > 0 {
			answer.WriteString(event.Delta.Choices[0].Delta.Content)
		}
	}
}

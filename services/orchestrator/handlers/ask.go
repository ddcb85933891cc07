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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
)

// HandleAskRequest serves POST /v1/ask.
//
// # Description
//
// Binds and validates an AskRequest and runs the single-turn
// retrieve-then-read pipeline. The ask endpoint does not stream; the answer
// comes back as one JSON ChatResponse with citations and thought steps.
//
// # Inputs
//
//   - approach: The retrieve-then-read pipeline. Must not be nil.
//   - opts: Enterprise extension points (authz, audit, message filter).
//
// # Outputs
//
//   - gin.HandlerFunc: Handler ready for route registration.
func HandleAskRequest(approach *approaches.RetrieveThenRead, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleAskRequest")
		defer span.End()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			recordError(observability.EndpointAsk, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Rejected invalid ask request", "error", err)
			recordError(observability.EndpointAsk, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(attribute.Int("ask.messages", len(request.Messages)))

		rawBody, _ := json.Marshal(request)
		guard, ok := newRequestGuard(c, opts, observability.EndpointAsk, "ask", rawBody)
		if !ok {
			return
		}
		if !guard.filterLastUserMessage(c, request.Messages) {
			return
		}

		resp, err := approach.Run(ctx, request.Messages, request.Context.Overrides, request.SessionState)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Ask approach failed", "error", err)
			recordRequest(observability.EndpointAsk, false)
			recordError(observability.EndpointAsk, observability.ErrorCodePipeline)
			guard.finish(ctx, http.StatusInternalServerError, "application/json", nil, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": clientErrorMessage})
			return
		}

		recordRequest(observability.EndpointAsk, true)
		if len(resp.Choices) > 0 {
			recordRetrievedDocuments(observability.EndpointAsk, len(resp.Choices[0].Context.DataPoints.Text))
		}
		respBody, _ := json.Marshal(resp)
		guard.finish(ctx, http.StatusOK, "application/json", respBody, "success")
		c.JSON(http.StatusOK, resp)
	}
}

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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
)

// WSServerMessage is the envelope for server-to-client websocket frames.
//
// Exactly one of Delta, Error, or Done is meaningful per frame:
//   - Delta frames carry the same ChatDelta objects as the NDJSON stream.
//   - Error frames report a sanitized failure; the turn is over.
//   - Done frames mark the end of a successful turn.
type WSServerMessage struct {
	Delta *datatypes.ChatDelta `json:"delta,omitempty"`
	Error string               `json:"error,omitempty"`
	Done  bool                 `json:"done,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Requests carry full conversation history plus overrides; 1MB covers the
	// 100-message * 32KB validation ceiling with room for framing.
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /v1/chat/ws.
//
// # Description
//
// Bridges the chat pipeline's delta stream over a websocket. Each client
// frame is a full ChatRequest (the stream flag is ignored; websocket turns
// always stream). The server answers with a sequence of WSServerMessage
// frames: zero or more Delta frames followed by one Done frame, or a single
// Error frame if the turn failed. The connection stays open across turns.
//
// Authorization runs once before the upgrade; the message filter runs on
// every turn because each client frame carries fresh user content.
func HandleChatWebSocket(approach approaches.Approach, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		authInfo := extensions.AuthInfoFromContext(ctx)
		userID := "anonymous"
		if authInfo != nil {
			userID = authInfo.UserID
		}
		if err := opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
			User:         authInfo,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   "chat/ws",
		}); err != nil {
			_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
				EventType:    "authz.denied",
				Timestamp:    time.Now().UTC(),
				UserID:       userID,
				Action:       "send",
				ResourceType: "chat",
				ResourceID:   "chat/ws",
				Outcome:      "denied",
				Metadata:     map[string]any{"reason": err.Error()},
			})
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		connID := uuid.New().String()
		slog.Info("Websocket client connected", "connID", connID)

		for {
			var request datatypes.ChatRequest
			if err := ws.ReadJSON(&request); err != nil {
				slog.Info("Websocket client disconnected", "connID", connID, "error", err.Error())
				return
			}

			if err := request.Validate(); err != nil {
				slog.Warn("Rejected invalid websocket chat request", "connID", connID, "error", err)
				recordError(observability.EndpointChatWS, observability.ErrorCodeValidation)
				if sendJSON(ws, WSServerMessage{Error: err.Error()}) != nil {
					return
				}
				continue
			}

			if ok, alive := filterTurn(c, ws, opts, userID, request.Messages); !ok {
				if !alive {
					return
				}
				continue
			}

			if !streamTurn(c, ws, approach, request) {
				return
			}
		}
	}
}

// filterTurn runs the inbound message filter over the final user turn.
// ok reports whether the turn may proceed; alive reports whether the
// connection is still usable when it may not.
func filterTurn(c *gin.Context, ws *websocket.Conn, opts extensions.ServiceOptions, userID string, messages []datatypes.Message) (ok, alive bool) {
	ctx := c.Request.Context()

	lastIdx := len(messages) - 1
	if lastIdx < 0 || messages[lastIdx].Role != datatypes.RoleUser {
		return true, true
	}

	result, err := opts.MessageFilter.FilterInput(ctx, messages[lastIdx].Content)
	if err != nil {
		slog.Error("Message filter failed", "error", err, "userId", userID)
		return false, sendJSON(ws, WSServerMessage{Error: "message processing failed"}) == nil
	}
	if result.WasBlocked {
		_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   "chat/ws",
			Outcome:      "blocked",
			Metadata:     map[string]any{"reason": result.BlockReason},
		})
		recordError(observability.EndpointChatWS, observability.ErrorCodeValidation)
		return false, sendJSON(ws, WSServerMessage{Error: "Message blocked by content filter"}) == nil
	}
	if result.WasModified {
		messages[lastIdx].Content = result.Filtered
	}
	return true, true
}

// streamTurn runs one conversational turn and forwards its deltas.
// Returns false when the connection is no longer usable.
func streamTurn(c *gin.Context, ws *websocket.Conn, approach approaches.Approach, request datatypes.ChatRequest) bool {
	ctx := c.Request.Context()

	recordStreamStarted(observability.EndpointChatWS)
	started := time.Now()
	firstDelta := true
	success := true

	defer func() {
		recordStreamEnded(observability.EndpointChatWS)
		recordStreamDuration(observability.EndpointChatWS, time.Since(started).Seconds(), success)
		recordRequest(observability.EndpointChatWS, success)
	}()

	for event := range approach.RunStream(ctx, request.Messages, request.Context.Overrides, request.SessionState) {
		if event.Err != nil {
			slog.Error("Websocket chat stream failed", "error", event.Err)
			recordError(observability.EndpointChatWS, observability.ErrorCodePipeline)
			success = false
			// The connection survives a pipeline error; only write failures
			// end the session.
			return sendJSON(ws, WSServerMessage{Error: clientErrorMessage}) == nil
		}
		if firstDelta {
			recordTimeToFirstDelta(observability.EndpointChatWS, time.Since(started).Seconds())
			firstDelta = false
		}
		delta := event.Delta
		if err := sendJSON(ws, WSServerMessage{Delta: &delta}); err != nil {
			recordClientDisconnect(observability.EndpointChatWS)
			success = false
			return false
		}
	}

	return sendJSON(ws, WSServerMessage{Done: true}) == nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Response and stream event types for the chat and ask endpoints.
package datatypes

import (
	"encoding/json"
	"errors"
)

// ErrLastMessageNotUser is returned when the final message of a request
// does not come from the user.
var ErrLastMessageNotUser = errors.New("the most recent message must be from the user")

// =============================================================================
// Grounding Context
// =============================================================================

// ThoughtStep records one stage of the answer pipeline for the
// "thoughts" debug panel.
//
// # Fields
//
//   - Title: Human-readable stage name.
//   - Description: The stage's principal artifact (prompt, query, results).
//   - Props: Stage-specific key/value details (model, deployment, params).
type ThoughtStep struct {
	Title       string         `json:"title"`
	Description any            `json:"description"`
	Props       map[string]any `json:"props,omitempty"`
}

// ResponseContext carries the grounding evidence attached to an answer.
//
// DataPoints holds the rendered source passages the model saw; Thoughts is
// the ordered pipeline trace; FollowupQuestions holds any <<...>> questions
// extracted from the answer.
type ResponseContext struct {
	DataPoints        DataPoints    `json:"data_points"`
	Thoughts          []ThoughtStep `json:"thoughts"`
	FollowupQuestions []string      `json:"followup_questions,omitempty"`
}

// DataPoints holds the retrieved evidence by modality.
type DataPoints struct {
	Text   []string `json:"text,omitempty"`
	Images []string `json:"images,omitempty"`
}

// =============================================================================
// Chat Response
// =============================================================================

// ResponseMessage is a single generated turn in a response choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseChoice is one completed answer with its grounding context.
type ResponseChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	Context      ResponseContext `json:"context"`
	SessionState json.RawMessage `json:"session_state,omitempty"`
}

// ChatResponse is the non-streaming response body for /v1/chat and /v1/ask.
type ChatResponse struct {
	Choices []ResponseChoice `json:"choices"`
}

// =============================================================================
// Stream Events
// =============================================================================

// DeltaMessage is the incremental payload of a stream event. All fields
// are optional; an event may carry context only, content only, or
// context extras only.
type DeltaMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// DeltaChoice is one choice of a streamed event.
//
// Context is set only on the initial synthetic event; FollowupQuestions
// only on the final event when follow-up extraction ran.
type DeltaChoice struct {
	Index        int              `json:"index"`
	Delta        DeltaMessage     `json:"delta"`
	Context      *ResponseContext `json:"context,omitempty"`
	SessionState json.RawMessage  `json:"session_state,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// ChatDelta is a single NDJSON line of a streamed chat response.
type ChatDelta struct {
	Choices []DeltaChoice `json:"choices"`
}

// NewContextDelta builds the initial synthetic event carrying the full
// grounding context and an empty assistant message.
func NewContextDelta(ctx ResponseContext, sessionState json.RawMessage) ChatDelta {
	return ChatDelta{
		Choices: []DeltaChoice{
			{
				Index:        0,
				Delta:        DeltaMessage{Role: RoleAssistant},
				Context:      &ctx,
				SessionState: sessionState,
			},
		},
	}
}

// NewContentDelta builds an event carrying one increment of answer text.
func NewContentDelta(content string) ChatDelta {
	return ChatDelta{
		Choices: []DeltaChoice{
			{
				Index: 0,
				Delta: DeltaMessage{Role: RoleAssistant, Content: content},
			},
		},
	}
}

// NewFollowupDelta builds the final event carrying only the extracted
// follow-up questions.
func NewFollowupDelta(questions []string) ChatDelta {
	return ChatDelta{
		Choices: []DeltaChoice{
			{
				Index:   0,
				Delta:   DeltaMessage{Role: RoleAssistant},
				Context: &ResponseContext{FollowupQuestions: questions},
			},
		},
	}
}

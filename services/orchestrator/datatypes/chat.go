// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the request types for the grounded chat and ask
// endpoints. For the response and stream event types, see response.go.
package datatypes

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Per SEC-003: Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	// Per SEC-004: Unbounded message history mitigation.
	MaxMessagesPerRequest = 100
)

// Chat roles accepted on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size (SEC-003)
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the SEC-003 content size cap. Checks byte length
// (not rune count) so oversized payloads cannot slip past on multibyte text.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Types
// =============================================================================

// Message is a single conversation turn as it appears on the wire.
//
// # Fields
//
//   - Role: One of "system", "user", "assistant".
//   - Content: The turn's text. Limited to 32KB (SEC-003).
//
// The ordered sequence of Messages forms the conversation history,
// oldest first; the final message is the user's new question.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"maxbytes"`
}

// =============================================================================
// Overrides
// =============================================================================

// Overrides carries the per-request knobs a caller may set to steer
// retrieval and generation. All fields are optional; zero values select
// the documented defaults.
//
// # Fields
//
//   - RetrievalMode: "text", "vectors", or "hybrid" (default "hybrid").
//   - SemanticRanker / SemanticCaptions: opaque toggles forwarded to the
//     search backend.
//   - Top: Number of passages to retrieve (default 3).
//   - MinimumSearchScore / MinimumRerankerScore: score floors forwarded to
//     the search backend.
//   - Temperature: Generation temperature; nil selects the approach default.
//   - PromptTemplate: Full system prompt replacement, or an injected
//     addendum when prefixed with ">>>".
//   - SuggestFollowupQuestions: Ask the model for <<...>> follow-up markers
//     and extract them from the answer.
//   - VectorFields: Index fields to compute query vectors for
//     (default ["embedding"]; "imageEmbedding" selects the image modality).
//   - VisionInput: For the vision approach: "texts", "images", or
//     "textAndImages" (default) controlling what reaches the model.
//   - ExcludeCategory: Category filter forwarded to the search backend.
//   - UseOIDSecurityFilter / UseGroupsSecurityFilter: apply the caller's
//     auth claims as a document visibility filter.
type Overrides struct {
	RetrievalMode            string   `json:"retrieval_mode,omitempty" validate:"omitempty,oneof=text vectors hybrid"`
	SemanticRanker           bool     `json:"semantic_ranker,omitempty"`
	SemanticCaptions         bool     `json:"semantic_captions,omitempty"`
	Top                      int      `json:"top,omitempty" validate:"gte=0,lte=50"`
	MinimumSearchScore       float64  `json:"minimum_search_score,omitempty"`
	MinimumRerankerScore     float64  `json:"minimum_reranker_score,omitempty"`
	Temperature              *float32 `json:"temperature,omitempty"`
	PromptTemplate           string   `json:"prompt_template,omitempty"`
	SuggestFollowupQuestions bool     `json:"suggest_followup_questions,omitempty"`
	VectorFields             []string `json:"vector_fields,omitempty"`
	VisionInput              string   `json:"gpt4v_input,omitempty" validate:"omitempty,oneof=texts images textAndImages"`
	ExcludeCategory          string   `json:"exclude_category,omitempty"`
	UseOIDSecurityFilter     bool     `json:"use_oid_security_filter,omitempty"`
	UseGroupsSecurityFilter  bool     `json:"use_groups_security_filter,omitempty"`
}

// RequestContext is the caller-supplied context envelope.
type RequestContext struct {
	Overrides Overrides `json:"overrides"`
}

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest represents the POST /v1/chat request body.
//
// # Description
//
// ChatRequest carries the conversation history, the streaming flag, the
// retrieval/generation overrides, and an opaque session state blob that is
// echoed back unchanged in the response.
//
// # Validation
//
// Uses go-playground/validator:
//   - Messages: required, 1-100 elements, each element validated
//   - Messages[].Content: max 32768 bytes (32KB) per SEC-003
//   - The final message must come from the user (checked in Validate)
type ChatRequest struct {
	Messages     []Message       `json:"messages" validate:"required,min=1,max=100,dive"`
	Stream       bool            `json:"stream"`
	Context      RequestContext  `json:"context"`
	SessionState json.RawMessage `json:"session_state,omitempty"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if r.Messages[len(r.Messages)-1].Role != RoleUser {
		return ErrLastMessageNotUser
	}
	return nil
}

// =============================================================================
// Ask Request
// =============================================================================

// AskRequest represents the POST /v1/ask request body.
//
// The ask endpoint answers a single question with one retrieval pass and
// no query distillation; only the final user message is consulted.
type AskRequest struct {
	Messages     []Message       `json:"messages" validate:"required,min=1,max=100,dive"`
	Context      RequestContext  `json:"context"`
	SessionState json.RawMessage `json:"session_state,omitempty"`
}

// Validate validates the AskRequest fields.
func (r *AskRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if r.Messages[len(r.Messages)-1].Role != RoleUser {
		return ErrLastMessageNotUser
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_Validate_Valid(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "O que diz a cláusula de rescisão?"},
		},
	}

	err := req.Validate()
	assert.NoError(t, err, "minimal single-user-message request should validate")
}

func TestChatRequest_Validate_EmptyMessages(t *testing.T) {
	req := &ChatRequest{}

	err := req.Validate()
	assert.Error(t, err, "empty message list must be rejected")
}

func TestChatRequest_Validate_LastMessageNotUser(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "pergunta"},
			{Role: RoleAssistant, Content: "resposta"},
		},
	}

	err := req.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLastMessageNotUser)
}

func TestChatRequest_Validate_InvalidRole(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "tool", Content: "x"},
		},
	}

	err := req.Validate()
	assert.Error(t, err, "roles outside system/user/assistant must be rejected")
}

func TestChatRequest_Validate_ContentTooLarge(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: strings.Repeat("a", MaxMessageContentBytes+1)},
		},
	}

	err := req.Validate()
	assert.Error(t, err, "content above 32KB must be rejected")
}

func TestChatRequest_Validate_ContentAtLimit(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: strings.Repeat("a", MaxMessageContentBytes)},
		},
	}

	err := req.Validate()
	assert.NoError(t, err, "content exactly at 32KB is allowed")
}

func TestChatRequest_Validate_TooManyMessages(t *testing.T) {
	msgs := make([]Message, MaxMessagesPerRequest+1)
	for i := range msgs {
		msgs[i] = Message{Role: RoleUser, Content: "m"}
	}
	req := &ChatRequest{Messages: msgs}

	err := req.Validate()
	assert.Error(t, err, "more than 100 messages must be rejected")
}

func TestChatRequest_Validate_InvalidRetrievalMode(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
		Context: RequestContext{
			Overrides: Overrides{RetrievalMode: "keyword"},
		},
	}

	err := req.Validate()
	assert.Error(t, err, "retrieval_mode outside text/vectors/hybrid must be rejected")
}

func TestChatRequest_SessionStateRoundTrip(t *testing.T) {
	raw := []byte(`{"messages":[{"role":"user","content":"q"}],"session_state":{"conv":"abc-123"}}`)

	var req ChatRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	require.NoError(t, req.Validate())

	// The blob is opaque; it must survive unmodified.
	assert.JSONEq(t, `{"conv":"abc-123"}`, string(req.SessionState))
}

func TestAskRequest_Validate_LastMessageNotUser(t *testing.T) {
	req := &AskRequest{
		Messages: []Message{
			{Role: RoleAssistant, Content: "resposta"},
		},
	}

	err := req.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLastMessageNotUser)
}

func TestChatDelta_ContextDeltaShape(t *testing.T) {
	delta := NewContextDelta(ResponseContext{
		DataPoints: DataPoints{Text: []string{"doc1.pdf: conteúdo"}},
		Thoughts:   []ThoughtStep{{Title: "Search", Description: "cláusula rescisão"}},
	}, json.RawMessage(`{"s":1}`))

	require.Len(t, delta.Choices, 1)
	choice := delta.Choices[0]
	assert.Empty(t, choice.Delta.Content, "context event carries no answer text")
	require.NotNil(t, choice.Context)
	assert.Equal(t, []string{"doc1.pdf: conteúdo"}, choice.Context.DataPoints.Text)
	assert.JSONEq(t, `{"s":1}`, string(choice.SessionState))
}

func TestChatDelta_FollowupDeltaShape(t *testing.T) {
	delta := NewFollowupDelta([]string{"Qual o prazo?", "Há multa?"})

	require.Len(t, delta.Choices, 1)
	choice := delta.Choices[0]
	assert.Empty(t, choice.Delta.Content)
	require.NotNil(t, choice.Context)
	assert.Equal(t, []string{"Qual o prazo?", "Há multa?"}, choice.Context.FollowupQuestions)
	assert.Empty(t, choice.Context.DataPoints.Text)
}

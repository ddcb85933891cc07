// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approaches

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/unicode/norm"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// =============================================================================
// MessageBuilder
// =============================================================================

// MessageBuilder assembles the message list sent to the completion model.
//
// # Description
//
// The builder owns the ordering contract of a prompt: the system prompt is
// always at index 0, few-shot examples follow in their given order, history
// turns are inserted newest-first at a fixed index so that older turns push
// toward the end, and the new user turn comes last. All text content is
// normalized to Unicode NFC before token counting so visually identical
// strings count identically.
type MessageBuilder struct {
	model    string
	messages []openai.ChatCompletionMessage
}

// NewMessageBuilder creates a builder seeded with the system prompt.
func NewMessageBuilder(systemPrompt, model string) *MessageBuilder {
	return &MessageBuilder{
		model: model,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: normalizeContent(systemPrompt)},
		},
	}
}

// InsertMessage inserts a text message at the given index, shifting later
// messages toward the end. Index 0 is reserved for the system prompt.
func (b *MessageBuilder) InsertMessage(index int, role, content string) {
	msg := openai.ChatCompletionMessage{Role: role, Content: normalizeContent(content)}
	if index >= len(b.messages) {
		b.messages = append(b.messages, msg)
		return
	}
	b.messages = append(b.messages[:index], append([]openai.ChatCompletionMessage{msg}, b.messages[index:]...)...)
}

// InsertParts inserts a multi-part (text and image) message at the given
// index. Text parts are NFC-normalized; image parts pass through.
func (b *MessageBuilder) InsertParts(index int, role string, parts []openai.ChatMessagePart) {
	normalized := make([]openai.ChatMessagePart, len(parts))
	for i, p := range parts {
		if p.Type == openai.ChatMessagePartTypeText {
			p.Text = normalizeContent(p.Text)
		}
		normalized[i] = p
	}
	msg := openai.ChatCompletionMessage{Role: role, MultiContent: normalized}
	if index >= len(b.messages) {
		b.messages = append(b.messages, msg)
		return
	}
	b.messages = append(b.messages[:index], append([]openai.ChatCompletionMessage{msg}, b.messages[index:]...)...)
}

// Messages returns the assembled message list in send order.
func (b *MessageBuilder) Messages() []openai.ChatCompletionMessage {
	return b.messages
}

// normalizeContent canonicalizes text to NFC.
func normalizeContent(content string) string {
	return norm.NFC.String(content)
}

// =============================================================================
// History Assembly
// =============================================================================

// BuildMessages assembles the completion prompt from the conversation
// history under a token budget.
//
// # Description
//
// The layout is: system prompt, few-shot examples in order, as many
// history turns as the budget allows, then the new user turn. History is
// walked newest to oldest, each surviving turn inserted at the slot just
// after the few-shots, so the kept turns stay in chronological order and
// truncation drops the oldest turns first. The final history entry is
// skipped; the caller passes the new user turn separately (it may carry
// image parts the stored history does not).
//
// Budget accounting is a single cutoff: every mandatory message (system
// prompt, few-shots, new user turn) is counted first, then each history
// turn is costed before insertion and the walk stops at the first turn
// that would push the running total over maxTokens. Everything older is
// dropped too, even if an individually smaller turn would have fit.
//
// # Inputs
//
//   - systemPrompt: Rendered system prompt, placed at index 0.
//   - model: Completion model name, used for tokenizer selection.
//   - history: Full conversation, oldest first; last entry is the new
//     user question and is not re-inserted.
//   - userMessage: The new user turn, appended last. May carry MultiContent.
//   - maxTokens: Prompt token budget.
//   - fewShots: Example turns placed right after the system prompt.
//
// # Outputs
//
//   - The assembled message list, or an error when the model has no
//     tokenizer mapping.
func BuildMessages(
	systemPrompt string,
	model string,
	history []datatypes.Message,
	userMessage openai.ChatCompletionMessage,
	maxTokens int,
	fewShots []openai.ChatCompletionMessage,
) ([]openai.ChatCompletionMessage, error) {
	builder := NewMessageBuilder(systemPrompt, model)

	for i, shot := range fewShots {
		builder.InsertMessage(i+1, shot.Role, shot.Content)
	}
	appendIndex := len(fewShots) + 1

	if len(userMessage.MultiContent) > 0 {
		builder.InsertParts(appendIndex, userMessage.Role, userMessage.MultiContent)
	} else {
		builder.InsertMessage(appendIndex, userMessage.Role, userMessage.Content)
	}

	// Every mandatory message counts against the budget: the system
	// prompt, each few-shot example, and the new user turn.
	total := 0
	for _, msg := range builder.messages {
		msgTokens, err := NumTokensFromMessages(msg, model)
		if err != nil {
			return nil, fmt.Errorf("counting prompt tokens: %w", err)
		}
		total += msgTokens
	}

	// Walk the stored history newest to oldest, skipping the final entry
	// (it is the new user turn, passed separately above).
	for i := len(history) - 2; i >= 0; i-- {
		turn := history[i]
		turnTokens, err := NumTokensFromMessages(openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: normalizeContent(turn.Content),
		}, model)
		if err != nil {
			return nil, fmt.Errorf("counting history tokens: %w", err)
		}
		if total+turnTokens > maxTokens {
			break
		}
		builder.InsertMessage(appendIndex, turn.Role, turn.Content)
		total += turnTokens
	}

	return builder.Messages(), nil
}

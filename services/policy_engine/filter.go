// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
)

// MessageFilter adapts the policy engine to the extensions.MessageFilter
// seam so chat messages are scanned before they reach the LLM.
//
// Inbound user messages with any finding at or above BlockConfidence are
// blocked outright; findings below it are reported as detections but pass
// through. Outbound and context filtering pass through unchanged: retrieved
// sources are the operator's own indexed documents, and redacting model
// output would corrupt the citation markers clients parse.
type MessageFilter struct {
	engine *PolicyEngine

	// BlockConfidence is the minimum confidence that blocks a message.
	// Defaults to High.
	BlockConfidence ConfidenceLevel
}

// NewMessageFilter builds a filter backed by the embedded policy patterns.
func NewMessageFilter() (*MessageFilter, error) {
	engine, err := NewPolicyEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return &MessageFilter{engine: engine, BlockConfidence: High}, nil
}

// FilterInput scans a user message against the embedded classifications.
func (f *MessageFilter) FilterInput(_ context.Context, message string) (*extensions.FilterResult, error) {
	findings := f.engine.ScanContent(message)
	result := &extensions.FilterResult{
		Original: message,
		Filtered: message,
	}

	var blocked []string
	for _, finding := range findings {
		result.Detections = append(result.Detections, extensions.Detection{
			Type:     finding.ClassificationName,
			Location: fmt.Sprintf("line %d", finding.LineNumber),
			Action:   "flagged",
		})
		if f.blocks(finding.Confidence) {
			blocked = append(blocked, finding.PatternId)
		}
	}

	if len(blocked) > 0 {
		result.WasBlocked = true
		result.BlockReason = fmt.Sprintf("message contains %s", strings.Join(blocked, ", "))
	}
	return result, nil
}

// FilterOutput passes model output through unchanged.
func (f *MessageFilter) FilterOutput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: message, Filtered: message}, nil
}

// FilterContext passes retrieved source content through unchanged.
func (f *MessageFilter) FilterContext(_ context.Context, contextMsg string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: contextMsg, Filtered: contextMsg}, nil
}

func (f *MessageFilter) blocks(confidence ConfidenceLevel) bool {
	rank := map[ConfidenceLevel]int{Low: 0, Medium: 1, High: 2}
	threshold, ok := rank[f.BlockConfidence]
	if !ok {
		threshold = rank[High]
	}
	return rank[confidence] >= threshold
}

var _ extensions.MessageFilter = (*MessageFilter)(nil)

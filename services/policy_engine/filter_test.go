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
	"testing"
)

func TestMessageFilter_BlocksHighConfidenceSecret(t *testing.T) {
	filter, err := NewMessageFilter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}

	result, err := filter.FilterInput(context.Background(), "deploy with AKIA1234567890123456 please")
	if err != nil {
		t.Fatalf("FilterInput returned error: %v", err)
	}
	if !result.WasBlocked {
		t.Error("High-confidence secret should block the message")
	}
	if result.BlockReason == "" {
		t.Error("Blocked result should carry a reason")
	}
	if len(result.Detections) == 0 {
		t.Error("Findings should be reported as detections")
	}
}

func TestMessageFilter_FlagsWithoutBlockingBelowThreshold(t *testing.T) {
	filter, err := NewMessageFilter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}

	// US_SSN is medium confidence; the default threshold is High.
	result, err := filter.FilterInput(context.Background(), "customer record 123-45-6789")
	if err != nil {
		t.Fatalf("FilterInput returned error: %v", err)
	}
	if result.WasBlocked {
		t.Error("Medium-confidence finding should not block at the High threshold")
	}
	if len(result.Detections) == 0 {
		t.Error("Medium-confidence finding should still be flagged")
	}
}

func TestMessageFilter_LowerThresholdBlocksPII(t *testing.T) {
	filter, err := NewMessageFilter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	filter.BlockConfidence = Medium

	result, err := filter.FilterInput(context.Background(), "customer record 123-45-6789")
	if err != nil {
		t.Fatalf("FilterInput returned error: %v", err)
	}
	if !result.WasBlocked {
		t.Error("Medium-confidence finding should block at the Medium threshold")
	}
}

func TestMessageFilter_CleanMessagePasses(t *testing.T) {
	filter, err := NewMessageFilter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}

	result, err := filter.FilterInput(context.Background(), "Qual o valor total do contrato?")
	if err != nil {
		t.Fatalf("FilterInput returned error: %v", err)
	}
	if result.WasBlocked || result.WasModified {
		t.Error("Clean message should pass through untouched")
	}
	if result.Filtered != result.Original {
		t.Error("Filtered content should equal original for clean input")
	}
}

func TestMessageFilter_OutputAndContextPassThrough(t *testing.T) {
	filter, err := NewMessageFilter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}

	out, err := filter.FilterOutput(context.Background(), "answer with AKIA1234567890123456")
	if err != nil || out.WasBlocked {
		t.Error("Output filtering should pass through unchanged")
	}
	ctxRes, err := filter.FilterContext(context.Background(), "source: jdoe@example.com")
	if err != nil || ctxRes.WasBlocked {
		t.Error("Context filtering should pass through unchanged")
	}
}

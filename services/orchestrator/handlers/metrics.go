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
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
)

// Nil-safe wrappers around the metrics singleton. Handler unit tests run
// without observability.InitMetrics(), so every recording site goes through
// these instead of touching DefaultMetrics directly.

func recordRequest(endpoint observability.Endpoint, success bool) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
	}
}

func recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}

func recordStreamStarted(endpoint observability.Endpoint) {
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
	}
}

func recordStreamEnded(endpoint observability.Endpoint) {
	if m := observability.DefaultMetrics; m != nil {
		m.StreamEnded(endpoint)
	}
}

func recordStreamDuration(endpoint observability.Endpoint, seconds float64, success bool) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordStreamDuration(endpoint, seconds, success)
	}
}

func recordTimeToFirstDelta(endpoint observability.Endpoint, seconds float64) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordTimeToFirstDelta(endpoint, seconds)
	}
}

func recordRetrievedDocuments(endpoint observability.Endpoint, count int) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRetrievedDocuments(endpoint, count)
	}
}

func recordClientDisconnect(endpoint observability.Endpoint) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordClientDisconnect(endpoint)
	}
}

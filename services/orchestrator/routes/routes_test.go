// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockApproach is a minimal conversational pipeline for routing tests.
type mockApproach struct{}

func (m *mockApproach) Run(_ context.Context, _ []datatypes.Message, _ datatypes.Overrides, sessionState json.RawMessage) (datatypes.ChatResponse, error) {
	return datatypes.ChatResponse{
		Choices: []datatypes.ResponseChoice{{
			Message:      datatypes.ResponseMessage{Role: datatypes.RoleAssistant, Content: "mock answer"},
			SessionState: sessionState,
		}},
	}, nil
}

func (m *mockApproach) RunStream(_ context.Context, _ []datatypes.Message, _ datatypes.Overrides, sessionState json.RawMessage) <-chan approaches.StreamEvent {
	events := make(chan approaches.StreamEvent, 2)
	events <- approaches.StreamEvent{Delta: datatypes.NewContextDelta(datatypes.ResponseContext{}, sessionState)}
	events <- approaches.StreamEvent{Delta: datatypes.NewContentDelta("mock answer")}
	close(events)
	return events
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := gin.New()

	SetupRoutes(router, &mockApproach{}, nil, extensions.DefaultOptions(), RouteConfig{})

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat"},
		{"GET", "/v1/chat/ws"},
		{"POST", "/v1/ask"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s should be registered", expected.method, expected.path)
	}
}

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockApproach{}, nil, extensions.DefaultOptions(), RouteConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSetupRoutes_ChatEndpoint(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockApproach{}, nil, extensions.DefaultOptions(), RouteConfig{})

	body := `{"messages":[{"role":"user","content":"Qual o valor do contrato?"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "mock answer", resp.Choices[0].Message.Content)
}

func TestSetupRoutes_ChatStreamEndpoint(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockApproach{}, nil, extensions.DefaultOptions(), RouteConfig{})

	body := `{"messages":[{"role":"user","content":"Oi"}],"stream":true}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2, "expected context line plus one content line")
}

func TestSetupRoutes_ChatRejectsInvalidBody(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockApproach{}, nil, extensions.DefaultOptions(), RouteConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

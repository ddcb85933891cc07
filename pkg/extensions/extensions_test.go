// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// ServiceOptions
// =============================================================================

func TestDefaultOptions_AllSeamsNonNil(t *testing.T) {
	opts := DefaultOptions()

	if opts.AuthProvider == nil {
		t.Error("AuthProvider is nil")
	}
	if opts.AuthzProvider == nil {
		t.Error("AuthzProvider is nil")
	}
	if opts.AuditLogger == nil {
		t.Error("AuditLogger is nil")
	}
	if opts.MessageFilter == nil {
		t.Error("MessageFilter is nil")
	}
	if opts.RequestAuditor == nil {
		t.Error("RequestAuditor is nil")
	}
}

type fixedAuthProvider struct{ info *AuthInfo }

func (p *fixedAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return p.info, nil
}

type denyAllAuthz struct{}

func (denyAllAuthz) Authorize(_ context.Context, _ AuthzRequest) error {
	return ErrUnauthorized
}

func TestServiceOptions_FluentChaining(t *testing.T) {
	auth := &fixedAuthProvider{info: &AuthInfo{UserID: "user-1"}}
	authz := denyAllAuthz{}
	audit := &NopAuditLogger{}
	filter := &NopMessageFilter{}
	auditor := &NopRequestAuditor{}

	opts := DefaultOptions().
		WithAuth(auth).
		WithAuthz(authz).
		WithAudit(audit).
		WithFilter(filter).
		WithRequestAuditor(auditor)

	if opts.AuthProvider != auth {
		t.Error("WithAuth did not replace the provider")
	}
	if opts.AuthzProvider != authz {
		t.Error("WithAuthz did not replace the provider")
	}
	if opts.AuditLogger != audit {
		t.Error("WithAudit did not replace the logger")
	}
	if opts.MessageFilter != filter {
		t.Error("WithFilter did not replace the filter")
	}
	if opts.RequestAuditor != auditor {
		t.Error("WithRequestAuditor did not replace the auditor")
	}
}

func TestServiceOptions_WithCopiesNotMutates(t *testing.T) {
	base := DefaultOptions()
	modified := base.WithAuthz(denyAllAuthz{})

	if _, ok := base.AuthzProvider.(*NopAuthzProvider); !ok {
		t.Error("WithAuthz mutated the receiver")
	}
	if _, ok := modified.AuthzProvider.(denyAllAuthz); !ok {
		t.Error("WithAuthz did not set the provider on the copy")
	}
}

// =============================================================================
// AuthInfo
// =============================================================================

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{
		UserID: "user-1",
		Roles:  []string{"analyst", "viewer"},
	}

	if !info.HasRole("analyst") {
		t.Error("HasRole(analyst) = false, want true")
	}
	if info.HasRole("admin") {
		t.Error("HasRole(admin) = true, want false")
	}

	empty := &AuthInfo{UserID: "user-2"}
	if empty.HasRole("viewer") {
		t.Error("HasRole on empty roles = true, want false")
	}
}

func TestAuthInfo_GroupsMetadataRoundTrip(t *testing.T) {
	info := &AuthInfo{
		UserID:   "user-1",
		Metadata: NewMetadata().Set("groups", []string{"finance", "legal"}),
	}

	groups, ok := info.Metadata.GetStringSlice("groups")
	if !ok {
		t.Fatal("groups claim missing from metadata")
	}
	if len(groups) != 2 || groups[0] != "finance" || groups[1] != "legal" {
		t.Errorf("groups = %v, want [finance legal]", groups)
	}
}

func TestContextWithAuthInfo_RoundTrip(t *testing.T) {
	info := &AuthInfo{UserID: "user-1"}
	ctx := ContextWithAuthInfo(context.Background(), info)

	got := AuthInfoFromContext(ctx)
	if got != info {
		t.Errorf("AuthInfoFromContext = %v, want the attached identity", got)
	}

	if AuthInfoFromContext(context.Background()) != nil {
		t.Error("AuthInfoFromContext on a bare context should be nil")
	}
}

// =============================================================================
// Nop Providers
// =============================================================================

func TestNopAuthProvider_AcceptsAnyToken(t *testing.T) {
	provider := &NopAuthProvider{}

	for _, token := range []string{"", "anything", "Bearer abc"} {
		info, err := provider.Validate(context.Background(), token)
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", token, err)
		}
		if info.UserID != "local-user" {
			t.Errorf("UserID = %q, want local-user", info.UserID)
		}
		if !info.HasRole("admin") {
			t.Error("local user must hold the admin role")
		}
	}
}

func TestNopAuthzProvider_AllowsEverything(t *testing.T) {
	provider := &NopAuthzProvider{}

	err := provider.Authorize(context.Background(), AuthzRequest{
		User:         &AuthInfo{UserID: "anyone"},
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   "sess-1",
	})
	if err != nil {
		t.Errorf("Authorize() error = %v, want nil", err)
	}
}

func TestErrUnauthorized_Wrappable(t *testing.T) {
	wrapped := fmt.Errorf("token expired: %w", ErrUnauthorized)
	if !errors.Is(wrapped, ErrUnauthorized) {
		t.Error("wrapped error should match ErrUnauthorized")
	}
}

// =============================================================================
// Nop Audit
// =============================================================================

func TestNopAuditLogger_DiscardsAndReturnsEmpty(t *testing.T) {
	logger := &NopAuditLogger{}
	ctx := context.Background()

	err := logger.Log(ctx, AuditEvent{
		EventType: "chat.answer",
		Timestamp: time.Now().UTC(),
		UserID:    "user-1",
		Outcome:   "success",
	})
	if err != nil {
		t.Errorf("Log() error = %v", err)
	}

	events, err := logger.Query(ctx, AuditFilter{UserID: "user-1"})
	if err != nil {
		t.Errorf("Query() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Query() returned %d events, want 0", len(events))
	}

	if err := logger.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

// =============================================================================
// Nop Filter
// =============================================================================

func TestNopMessageFilter_PassesThrough(t *testing.T) {
	filter := &NopMessageFilter{}
	ctx := context.Background()
	message := "Qual o valor do contrato de manutenção?"

	checks := []struct {
		name string
		call func() (*FilterResult, error)
	}{
		{"input", func() (*FilterResult, error) { return filter.FilterInput(ctx, message) }},
		{"output", func() (*FilterResult, error) { return filter.FilterOutput(ctx, message) }},
		{"context", func() (*FilterResult, error) { return filter.FilterContext(ctx, message) }},
	}

	for _, check := range checks {
		t.Run(check.name, func(t *testing.T) {
			result, err := check.call()
			if err != nil {
				t.Fatalf("filter error = %v", err)
			}
			if result.Filtered != message {
				t.Errorf("Filtered = %q, want the input unchanged", result.Filtered)
			}
			if result.WasModified || result.WasBlocked {
				t.Error("nop filter must neither modify nor block")
			}
		})
	}
}

func TestErrMessageBlocked(t *testing.T) {
	if ErrMessageBlocked.Error() != "message blocked by filter" {
		t.Errorf("ErrMessageBlocked.Error() = %q", ErrMessageBlocked.Error())
	}
}

// =============================================================================
// Nop Request Auditor
// =============================================================================

func TestNopRequestAuditor_CaptureIsNoOp(t *testing.T) {
	auditor := &NopRequestAuditor{}
	ctx := context.Background()

	auditID, err := auditor.CaptureRequest(ctx, &AuditableRequest{
		Method:    "POST",
		Path:      "/v1/chat",
		Body:      []byte(`{"messages":[]}`),
		UserID:    "user-1",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CaptureRequest() error = %v", err)
	}
	if auditID != "" {
		t.Errorf("auditID = %q, want empty for the nop auditor", auditID)
	}

	err = auditor.CaptureResponse(ctx, auditID, &AuditableResponse{
		StatusCode: 200,
		Body:       []byte(`{"answer":"ok"}`),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Errorf("CaptureResponse() error = %v", err)
	}
}

func TestHTTPHeaders_GetSet(t *testing.T) {
	headers := HTTPHeaders{}
	headers.Set("Content-Type", "application/json")

	if got := headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Get = %q, want application/json", got)
	}
	if got := headers.Get("Missing"); got != "" {
		t.Errorf("Get missing key = %q, want empty", got)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestNopImplementations_ConcurrentUse(t *testing.T) {
	opts := DefaultOptions()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := opts.AuthProvider.Validate(ctx, "tok"); err != nil {
				t.Error("Validate failed under concurrency")
			}
			if err := opts.AuthzProvider.Authorize(ctx, AuthzRequest{Action: "send"}); err != nil {
				t.Error("Authorize failed under concurrency")
			}
			if _, err := opts.MessageFilter.FilterInput(ctx, "hello"); err != nil {
				t.Error("FilterInput failed under concurrency")
			}
			if err := opts.AuditLogger.Log(ctx, AuditEvent{EventType: "chat.answer"}); err != nil {
				t.Error("Log failed under concurrency")
			}
		}()
	}
	wg.Wait()
}

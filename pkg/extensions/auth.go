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
)

// ErrUnauthorized is the sentinel for failed authentication or
// authorization. Implementations wrap it with context.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity an AuthProvider returns for a validated
// token. UserID is the only required field.
//
// Metadata carries provider-specific claims. The retrieval layer reads
// the "groups" key to scope document visibility, so providers that
// enforce per-group access must populate it:
//
//	info := &AuthInfo{
//	    UserID: "user-123",
//	    Roles:  []string{"analyst"},
//	    Metadata: NewMetadata().
//	        Set("groups", []string{"finance", "legal"}),
//	}
type AuthInfo struct {
	// UserID uniquely identifies the authenticated user.
	UserID string

	// Email may be empty when the provider does not supply one.
	Email string

	// Roles are the user's role memberships.
	Roles []string

	// Metadata holds additional provider claims. "groups" feeds the
	// document visibility filter.
	Metadata Metadata
}

// HasRole reports whether the user holds the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens. Implementations must be safe
// for concurrent use.
//
// The default NopAuthProvider accepts every token as a local admin
// user, so a single-user deployment needs no identity infrastructure.
// Deployments behind an identity provider plug in an implementation
// that verifies the token and maps claims onto AuthInfo.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity.
	// Invalid tokens return ErrUnauthorized, possibly wrapped.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest is one (subject, action, resource) access check.
type AuthzRequest struct {
	// User is the identity from AuthProvider.Validate.
	User *AuthInfo

	// Action is the operation attempted, e.g. "send".
	Action string

	// ResourceType is the resource category, e.g. "chat".
	ResourceType string

	// ResourceID names the specific instance; empty means the check
	// covers the resource type in general.
	ResourceID string
}

// AuthzProvider decides whether an action is permitted. The guards run
// this check before every answer request and deny with 403 when it
// returns an error. Implementations must be safe for concurrent use.
type AuthzProvider interface {
	// Authorize returns nil when permitted and ErrUnauthorized
	// (possibly wrapped) when denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider accepts any token as a local admin user. It is the
// default for single-user deployments.
type NopAuthProvider struct{}

// Validate ignores the token and returns the local admin identity.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Email:  "",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider permits every action. It is the default when no
// access control backend is configured.
type NopAuthzProvider struct{}

// Authorize always permits the action.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)

// authInfoContextKey is the private context key for request identity.
type authInfoContextKey struct{}

// ContextWithAuthInfo attaches the authenticated identity to the context.
// Middleware calls this once per request after token validation; anything
// downstream retrieves it with AuthInfoFromContext.
func ContextWithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoContextKey{}, info)
}

// AuthInfoFromContext returns the identity attached by ContextWithAuthInfo,
// or nil when the request carries no identity. Callers must treat nil as
// an anonymous request, not an error.
func AuthInfoFromContext(ctx context.Context) *AuthInfo {
	info, _ := ctx.Value(authInfoContextKey{}).(*AuthInfo)
	return info
}

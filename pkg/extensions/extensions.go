// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable seams around the answer
// service: authentication, authorization, audit, content filtering,
// and request capture.
//
// Each seam is an interface with a no-op default, so a local
// single-user deployment runs with zero security infrastructure while
// a managed deployment injects real implementations through
// ServiceOptions:
//
//	// Local: permissive defaults
//	opts := extensions.DefaultOptions()
//
//	// Managed: inject implementations
//	opts := extensions.DefaultOptions().
//	    WithAuth(oidcProvider).
//	    WithAudit(siemLogger).
//	    WithFilter(policyFilter)
//
// The seams live one per file: auth.go (AuthProvider, AuthzProvider),
// audit.go (AuditLogger), filter.go (MessageFilter), and
// request_auditor.go (RequestAuditor). All implementations must be
// safe for concurrent use.
package extensions

// ServiceOptions groups the extension points the handlers consume.
// Nil fields are replaced with no-op defaults by DefaultOptions; the
// handlers assume every field is non-nil.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	AuthProvider AuthProvider

	// AuthzProvider checks per-request permissions.
	AuthzProvider AuthzProvider

	// AuditLogger records security-relevant events.
	AuditLogger AuditLogger

	// MessageFilter screens content crossing the trust boundary.
	MessageFilter MessageFilter

	// RequestAuditor captures raw request/response pairs.
	RequestAuditor RequestAuditor
}

// DefaultOptions returns ServiceOptions with every seam set to its
// permissive no-op implementation.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:   &NopAuthProvider{},
		AuthzProvider:  &NopAuthzProvider{},
		AuditLogger:    &NopAuditLogger{},
		MessageFilter:  &NopMessageFilter{},
		RequestAuditor: &NopRequestAuditor{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}

// WithRequestAuditor returns a copy of opts with the given RequestAuditor.
func (opts ServiceOptions) WithRequestAuditor(auditor RequestAuditor) ServiceOptions {
	opts.RequestAuditor = auditor
	return opts
}

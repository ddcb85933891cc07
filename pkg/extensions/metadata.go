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

// =============================================================================
// Metadata Type
// =============================================================================

// Metadata stores arbitrary key-value pairs attached to auth claims and
// audit entries.
//
// A defined type rather than a bare map[string]any keeps function
// signatures self-documenting and gives the claims a home for typed
// accessors.
//
// # Common Keys
//
//   - "groups": Directory group memberships ([]string), consumed by the
//     document visibility filter
//   - "request_id": Request correlation ID
//   - "ip_address": Client IP address
//   - "duration_ms": Operation duration
//
// # Thread Safety
//
// Metadata is NOT thread-safe. Do not share one instance across
// goroutines without external synchronization.
type Metadata map[string]any

// NewMetadata creates an empty Metadata instance.
//
// Example:
//
//	meta := extensions.NewMetadata().
//	    Set("request_id", requestID).
//	    Set("ip_address", clientIP)
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set stores a value and returns the Metadata for chaining. Calling Set
// on a nil Metadata allocates a fresh map.
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = make(Metadata)
	}
	m[key] = value
	return m
}

// Get returns the raw value for a key and whether it was present.
func (m Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// GetString returns the value for a key when it is present and holds a
// string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetStringSlice returns the value for a key when it is present and holds
// a []string.
func (m Metadata) GetStringSlice(key string) ([]string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.([]string)
	return s, ok
}

// Has reports whether a key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Merge copies the other Metadata's entries over this one, overwriting
// colliding keys, and returns the result for chaining.
func (m Metadata) Merge(other Metadata) Metadata {
	if m == nil {
		m = make(Metadata, len(other))
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Len returns the number of stored keys. Safe on nil Metadata.
func (m Metadata) Len() int {
	return len(m)
}

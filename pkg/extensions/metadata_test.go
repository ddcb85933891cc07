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

import "testing"

func TestMetadata_SetAndGet(t *testing.T) {
	meta := NewMetadata().
		Set("request_id", "req-42").
		Set("duration_ms", 150)

	v, ok := meta.Get("request_id")
	if !ok || v != "req-42" {
		t.Errorf("Get(request_id) = %v, %v; want req-42, true", v, ok)
	}
	if _, ok := meta.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}
	if meta.Len() != 2 {
		t.Errorf("Len() = %d, want 2", meta.Len())
	}
}

func TestMetadata_SetOnNilAllocates(t *testing.T) {
	var meta Metadata
	meta = meta.Set("key", "value")

	if s, ok := meta.GetString("key"); !ok || s != "value" {
		t.Errorf("GetString(key) = %q, %v; want value, true", s, ok)
	}
}

func TestMetadata_GetString(t *testing.T) {
	meta := NewMetadata().Set("name", "contrato1.pdf").Set("count", 3)

	if s, ok := meta.GetString("name"); !ok || s != "contrato1.pdf" {
		t.Errorf("GetString(name) = %q, %v", s, ok)
	}
	if _, ok := meta.GetString("count"); ok {
		t.Error("GetString on a non-string value should report failure")
	}
	if _, ok := meta.GetString("missing"); ok {
		t.Error("GetString on a missing key should report failure")
	}
}

func TestMetadata_GetStringSlice(t *testing.T) {
	meta := NewMetadata().Set("groups", []string{"legal", "rh"})

	groups, ok := meta.GetStringSlice("groups")
	if !ok || len(groups) != 2 || groups[0] != "legal" {
		t.Errorf("GetStringSlice(groups) = %v, %v", groups, ok)
	}
	if _, ok := meta.GetStringSlice("missing"); ok {
		t.Error("GetStringSlice on a missing key should report failure")
	}
}

func TestMetadata_NilIsSafe(t *testing.T) {
	var meta Metadata

	if _, ok := meta.Get("key"); ok {
		t.Error("Get on nil Metadata should report absence")
	}
	if meta.Has("key") {
		t.Error("Has on nil Metadata should be false")
	}
	if meta.Len() != 0 {
		t.Errorf("Len on nil Metadata = %d, want 0", meta.Len())
	}
}

func TestMetadata_Merge(t *testing.T) {
	base := NewMetadata().Set("a", 1).Set("b", 1)
	merged := base.Merge(NewMetadata().Set("b", 2).Set("c", 3))

	if v, _ := merged.Get("b"); v != 2 {
		t.Errorf("Merge should overwrite colliding keys, got b = %v", v)
	}
	if merged.Len() != 3 {
		t.Errorf("Len() = %d, want 3", merged.Len())
	}

	var nilMeta Metadata
	out := nilMeta.Merge(NewMetadata().Set("x", true))
	if !out.Has("x") {
		t.Error("Merge into nil Metadata should allocate and copy")
	}
}

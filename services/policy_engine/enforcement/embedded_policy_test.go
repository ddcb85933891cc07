// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enforcement

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedPolicyIsValidYAML(t *testing.T) {
	if len(DataClassificationPatterns) == 0 {
		t.Fatal("embedded policy is empty; data_classification_patterns.yaml missing from the build")
	}

	var doc map[string]any
	if err := yaml.Unmarshal(DataClassificationPatterns, &doc); err != nil {
		t.Fatalf("embedded policy is not valid YAML: %v", err)
	}
	if _, ok := doc["classifications"]; !ok {
		t.Error("embedded policy has no classifications key")
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement bakes the classification policy into the binary.
// Embedding the YAML means the scanning rules travel with the executable
// and cannot be edited on the host without a rebuild.
package enforcement

import (
	_ "embed"
)

// DataClassificationPatterns is the raw classification YAML, embedded
// at compile time. The policy engine unmarshals it at startup:
//
//	err := yaml.Unmarshal(enforcement.DataClassificationPatterns, &target)
//
//go:embed data_classification_patterns.yaml
var DataClassificationPatterns []byte

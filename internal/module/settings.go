// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package module

import (
	"fmt"
	"strconv"
)

// Level classifies a validation result.
type Level string

// Validation levels. Error-level results block session activation,
// warning-level results are surfaced but do not block.
const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ValidationResult describes one finding from validating a configured module's
// settings against its definition.
type ValidationResult struct {
	Level    Level  `json:"level"`
	ModuleID string `json:"module_id"`
	Key      string `json:"key,omitempty"`
	Message  string `json:"message"`
}

// ApplyDefaults returns a copy of values with declared defaults filled in for
// keys the caller did not supply. The input map is never modified.
func ApplyDefaults(def Definition, values map[string]string) map[string]string {
	merged := make(map[string]string, len(def.Settings))
	for _, s := range def.Settings {
		if s.Default != "" {
			merged[s.Key] = s.Default
		}
	}
	for k, v := range values {
		merged[k] = v
	}
	return merged
}

// ValidateSettings checks supplied setting values against the definition's
// descriptor set: presence of required keys and per-type coercion. Unknown
// keys produce warnings. An empty result slice means the values are valid.
func ValidateSettings(def Definition, values map[string]string) []ValidationResult {
	var results []ValidationResult

	for _, desc := range def.Settings {
		value, supplied := values[desc.Key]
		if !supplied || value == "" {
			if desc.Default != "" {
				value = desc.Default
			} else if desc.Required {
				results = append(results, ValidationResult{
					Level:    LevelError,
					ModuleID: def.ID,
					Key:      desc.Key,
					Message:  fmt.Sprintf("required setting %q is missing", desc.Key),
				})
				continue
			} else {
				continue
			}
		}

		if err := coerce(desc.Type, value); err != nil {
			results = append(results, ValidationResult{
				Level:    LevelError,
				ModuleID: def.ID,
				Key:      desc.Key,
				Message:  fmt.Sprintf("setting %q: %v", desc.Key, err),
			})
		}
	}

	for key := range values {
		if _, declared := def.Setting(key); !declared {
			results = append(results, ValidationResult{
				Level:    LevelWarning,
				ModuleID: def.ID,
				Key:      key,
				Message:  fmt.Sprintf("setting %q is not declared by module %s", key, def.ID),
			})
		}
	}

	return results
}

// coerce checks that value parses as the descriptor's type.
// Text and multiline values are accepted as-is.
func coerce(t SettingType, value string) error {
	switch t {
	case SettingNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
	case SettingBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%q is not a boolean", value)
		}
	case SettingText, SettingMultiline:
	default:
		return fmt.Errorf("unknown setting type %q", t)
	}
	return nil
}

// HasErrors reports whether any result is error-level.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == LevelError {
			return true
		}
	}
	return false
}

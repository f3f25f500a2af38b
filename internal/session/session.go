// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package session activates presets into running module instances and tracks
// the single active session.
package session

import (
	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
)

// State is the session lifecycle state.
type State string

// Session lifecycle states. Failed is entered from Validating or Starting and
// transitions back to Idle after cleanup.
const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateFailed     State = "failed"
)

// Snapshot is a consistent view of the manager for diagnostics readers.
// It never exposes a half-initialized session.
type Snapshot struct {
	State      State  `json:"state"`
	PresetID   string `json:"preset_id,omitempty"`
	PresetName string `json:"preset_name,omitempty"`
	Modules    int    `json:"modules"`
}

// ActivationResult aggregates the per-module validation findings of one
// Activate call. Error-level results block activation; warnings do not.
type ActivationResult struct {
	Results []module.ValidationResult `json:"results,omitempty"`
}

// HasErrors reports whether any result blocks activation.
func (r *ActivationResult) HasErrors() bool {
	return module.HasErrors(r.Results)
}

// Warnings returns only the warning-level results.
func (r *ActivationResult) Warnings() []module.ValidationResult {
	var out []module.ValidationResult
	for _, res := range r.Results {
		if res.Level == module.LevelWarning {
			out = append(out, res)
		}
	}
	return out
}

// Errors returns only the error-level results.
func (r *ActivationResult) Errors() []module.ValidationResult {
	var out []module.ValidationResult
	for _, res := range r.Results {
		if res.Level == module.LevelError {
			out = append(out, res)
		}
	}
	return out
}

// Catalog is the registry view the manager needs: definition resolution and
// instance factories.
type Catalog interface {
	Get(id string) (module.Definition, error)
	Factory(id string) (module.Factory, error)
}

// runningModule pairs a module id with its live instance.
type runningModule struct {
	id       string
	instance module.Instance
}

// activeSession wraps the preset being run and its live instances.
type activeSession struct {
	preset  preset.Preset
	modules []runningModule
}

// StateListener observes manager state changes, e.g. for metrics.
type StateListener func(State)

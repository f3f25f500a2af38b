// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package module provides module definitions, discovery, and the loaded-module
// catalog.
package module

import "context"

// SettingType identifies how a setting value is rendered and coerced.
type SettingType string

// Setting types supported by module manifests.
const (
	SettingText      SettingType = "text"
	SettingNumber    SettingType = "number"
	SettingMultiline SettingType = "multiline"
	SettingBool      SettingType = "bool"
)

// KnownSettingType reports whether t is a supported setting type.
func KnownSettingType(t SettingType) bool {
	switch t {
	case SettingText, SettingNumber, SettingMultiline, SettingBool:
		return true
	}
	return false
}

// SettingDescriptor describes one configurable value of a module.
type SettingDescriptor struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Type     SettingType `json:"type"`
	Default  string      `json:"default,omitempty"`
	Required bool        `json:"required"`
}

// Definition is the immutable description of a loaded module. Definitions are
// owned by the Registry and evicted only when the Registry re-initializes.
type Definition struct {
	// ID is the stable unique module identifier (the manifest name).
	ID string `json:"id"`
	// Name is the human-readable display name.
	Name    string `json:"name"`
	Version string `json:"version"`
	// Settings is the ordered settings schema.
	Settings []SettingDescriptor `json:"settings,omitempty"`
	// Actions lists the action keys the module declares.
	Actions []string `json:"actions,omitempty"`
	// AllowedHosts holds glob patterns for outbound HTTP access.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`
	// Dir is the module package directory the definition was loaded from.
	Dir string `json:"-"`
	// Executable is the module binary, relative to Dir.
	Executable string `json:"-"`
}

// Setting returns the descriptor for key, if declared.
func (d Definition) Setting(key string) (SettingDescriptor, bool) {
	for _, s := range d.Settings {
		if s.Key == key {
			return s, true
		}
	}
	return SettingDescriptor{}, false
}

// ActionState is a point-in-time view of one action exposed by a running
// module instance. Label and Enabled are live values on the module side.
type ActionState struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// Instance is a running module produced by a Factory.
type Instance interface {
	// Actions returns the current state of the instance's actions.
	Actions(ctx context.Context) ([]ActionState, error)
	// Invoke triggers an action. With wait set, it blocks until the module's
	// handler completes; otherwise it returns once the invocation is accepted.
	Invoke(ctx context.Context, key string, wait bool) error
	// Stop shuts the instance down and releases its isolation boundary.
	Stop(ctx context.Context) error
}

// Factory produces module instances bound to concrete setting values.
type Factory interface {
	New(ctx context.Context, settings map[string]string) (Instance, error)
}

// Loader loads one module package directory into a Definition and a Factory.
type Loader interface {
	Load(ctx context.Context, dir string) (Definition, Factory, error)
}

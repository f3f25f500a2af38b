// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package preset provides named, persisted module configurations and their
// durable store.
package preset

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConfiguredModule references a module definition plus the concrete setting
// values to run it with. It exists only as part of a Preset.
type ConfiguredModule struct {
	ModuleID string            `yaml:"module" json:"module"`
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Preset is a named, ordered collection of configured modules. Presets are
// inert: they may reference module ids that are not currently installed, which
// only matters once activation is attempted.
type Preset struct {
	ID      string             `yaml:"id" json:"id"`
	Name    string             `yaml:"name" json:"name"`
	Modules []ConfiguredModule `yaml:"modules,omitempty" json:"modules,omitempty"`
}

// Validate checks the fields a store requires.
func (p Preset) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("preset id is required")
	}
	if _, err := ulid.Parse(p.ID); err != nil {
		return fmt.Errorf("preset id %q is not a ULID: %w", p.ID, err)
	}
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	return nil
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new preset identifier.
func NewID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

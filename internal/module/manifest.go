// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package module

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// HostAPIConstraint is the manifest api-version range this host accepts.
const HostAPIConstraint = ">=1.0.0 <2.0.0"

// Manifest represents a module.yaml file.
type Manifest struct {
	Name         string            `yaml:"name" json:"name"`
	DisplayName  string            `yaml:"display-name,omitempty" json:"display-name,omitempty"`
	Version      string            `yaml:"version" json:"version"`
	APIVersion   string            `yaml:"api-version" json:"api-version"`
	Executable   string            `yaml:"executable" json:"executable"`
	Settings     []ManifestSetting `yaml:"settings,omitempty" json:"settings,omitempty"`
	Actions      []string          `yaml:"actions,omitempty" json:"actions,omitempty"`
	AllowedHosts []string          `yaml:"allowed-hosts,omitempty" json:"allowed-hosts,omitempty"`
}

// ManifestSetting declares one entry of the settings schema.
type ManifestSetting struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	Type     string `yaml:"type" json:"type"`
	Default  string `yaml:"default,omitempty" json:"default,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// maxNameLength is the maximum allowed length for module names.
const maxNameLength = 64

// namePattern validates module names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a module.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}

	if m.APIVersion == "" {
		return fmt.Errorf("api-version is required")
	}
	apiVersion, err := semver.NewVersion(m.APIVersion)
	if err != nil {
		return fmt.Errorf("api-version %q is not a semantic version: %w", m.APIVersion, err)
	}
	constraint, err := semver.NewConstraint(HostAPIConstraint)
	if err != nil {
		return fmt.Errorf("host api constraint: %w", err)
	}
	if !constraint.Check(apiVersion) {
		return fmt.Errorf("api-version %s is outside the supported range %s", m.APIVersion, HostAPIConstraint)
	}

	if m.Executable == "" {
		return fmt.Errorf("executable is required")
	}

	seenKeys := make(map[string]struct{}, len(m.Settings))
	for i, s := range m.Settings {
		if s.Key == "" {
			return fmt.Errorf("settings[%d]: key is required", i)
		}
		if _, dup := seenKeys[s.Key]; dup {
			return fmt.Errorf("settings[%d]: duplicate key %q", i, s.Key)
		}
		seenKeys[s.Key] = struct{}{}
		if !KnownSettingType(SettingType(s.Type)) {
			return fmt.Errorf("settings[%d] (%s): unknown type %q", i, s.Key, s.Type)
		}
	}

	seenActions := make(map[string]struct{}, len(m.Actions))
	for i, key := range m.Actions {
		if key == "" {
			return fmt.Errorf("actions[%d]: key cannot be empty", i)
		}
		if _, dup := seenActions[key]; dup {
			return fmt.Errorf("actions[%d]: duplicate key %q", i, key)
		}
		seenActions[key] = struct{}{}
	}

	return nil
}

// Definition converts the manifest into an immutable Definition rooted at dir.
func (m *Manifest) Definition(dir string) Definition {
	name := m.DisplayName
	if name == "" {
		name = m.Name
	}

	settings := make([]SettingDescriptor, len(m.Settings))
	for i, s := range m.Settings {
		label := s.Label
		if label == "" {
			label = s.Key
		}
		settings[i] = SettingDescriptor{
			Key:      s.Key,
			Label:    label,
			Type:     SettingType(s.Type),
			Default:  s.Default,
			Required: s.Required,
		}
	}

	return Definition{
		ID:           m.Name,
		Name:         name,
		Version:      m.Version,
		Settings:     settings,
		Actions:      append([]string(nil), m.Actions...),
		AllowedHosts: append([]string(nil), m.AllowedHosts...),
		Dir:          dir,
		Executable:   m.Executable,
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when deleting a preset id that isn't stored.
var ErrNotFound = errors.New("preset not found")

// storeFile is the on-disk document. Presets keep their saved order.
type storeFile struct {
	Presets []Preset `yaml:"presets"`
}

// FileStore persists presets in a single YAML file. Save is an upsert keyed
// by preset id with last-write-wins semantics; writes go through a temp file
// and rename, so a concurrent read never observes a half-written document.
//
// FileStore does no validation against loaded modules; dangling module ids
// are a valid, inert state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first
// save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadAll returns every stored preset in saved order.
// A missing store file yields an empty list, not an error.
func (s *FileStore) LoadAll() ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return doc.Presets, nil
}

// Save upserts the preset keyed by its id.
func (s *FileStore) Save(p Preset) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid preset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range doc.Presets {
		if existing.ID == p.ID {
			doc.Presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Presets = append(doc.Presets, p)
	}

	return s.writeLocked(doc)
}

// Delete removes the preset with the given id.
// Returns ErrNotFound if no such preset is stored.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	for i, existing := range doc.Presets {
		if existing.ID == id {
			doc.Presets = append(doc.Presets[:i], doc.Presets[i+1:]...)
			return s.writeLocked(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *FileStore) readLocked() (storeFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return storeFile{}, nil
		}
		return storeFile{}, fmt.Errorf("read preset store %s: %w", s.path, err)
	}

	var doc storeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return storeFile{}, fmt.Errorf("decode preset store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) writeLocked(doc storeFile) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode preset store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create preset store directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".presets-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preset store: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write preset store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close preset store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace preset store %s: %w", s.path, err)
	}
	return nil
}

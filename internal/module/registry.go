// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// ManifestFileName is the manifest file expected inside each module directory.
const ManifestFileName = "module.yaml"

// defaultLoadParallelism bounds concurrent module loads during Initialize.
const defaultLoadParallelism = 4

// Sentinel errors for programmatic error checking.
var (
	// ErrNotInitialized is returned by catalog reads before Initialize completes.
	ErrNotInitialized = errors.New("module registry not initialized")
	// ErrUnknownModule is returned when no definition exists for an id.
	ErrUnknownModule = errors.New("unknown module")
)

// Registry discovers installed module packages, loads each through a Loader,
// and owns the catalog of successfully loaded definitions.
//
// The catalog is published once per Initialize call and is safe for unlimited
// concurrent readers. Initialize may be re-run; it discards and rebuilds the
// catalog.
type Registry struct {
	modulesDir  string
	loader      Loader
	parallelism int

	mu          sync.RWMutex
	defs        map[string]Definition
	factories   map[string]Factory
	order       []string
	initialized bool
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithLoadParallelism bounds the number of concurrent module loads.
func WithLoadParallelism(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// NewRegistry creates a registry scanning modulesDir.
// Panics if loader is nil.
func NewRegistry(modulesDir string, loader Loader, opts ...RegistryOption) *Registry {
	if loader == nil {
		panic("module: loader cannot be nil")
	}
	r := &Registry{
		modulesDir:  modulesDir,
		loader:      loader,
		parallelism: defaultLoadParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize enumerates every module package directory and loads each one
// independently. A single package's load failure is logged and the package is
// skipped; initialization succeeds once enumeration completes, even with zero
// successfully loaded modules.
func (r *Registry) Initialize(ctx context.Context) error {
	entries, err := os.ReadDir(r.modulesDir)
	if err != nil && !os.IsNotExist(err) {
		return oops.Code("REGISTRY_SCAN_FAILED").
			With("dir", r.modulesDir).
			Wrapf(err, "failed to read modules directory")
	}

	type loadResult struct {
		def     Definition
		factory Factory
	}

	var (
		resultMu sync.Mutex
		results  []loadResult
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, r.parallelism)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.modulesDir, entry.Name())

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			def, factory, err := r.loader.Load(ctx, dir)
			if err != nil {
				slog.Warn("skipping module that failed to load",
					"dir", dir,
					"error", err)
				return
			}

			resultMu.Lock()
			results = append(results, loadResult{def: def, factory: factory})
			resultMu.Unlock()
		}()
	}
	wg.Wait()

	defs := make(map[string]Definition, len(results))
	factories := make(map[string]Factory, len(results))
	for _, res := range results {
		if _, dup := defs[res.def.ID]; dup {
			slog.Warn("skipping module with duplicate id",
				"module", res.def.ID,
				"dir", res.def.Dir)
			continue
		}
		defs[res.def.ID] = res.def
		factories[res.def.ID] = res.factory
	}

	order := make([]string, 0, len(defs))
	for id := range defs {
		order = append(order, id)
	}
	sort.Strings(order)

	r.mu.Lock()
	r.defs = defs
	r.factories = factories
	r.order = order
	r.initialized = true
	r.mu.Unlock()

	slog.Info("module registry initialized",
		"dir", r.modulesDir,
		"loaded", len(order))

	return nil
}

// All returns every loaded definition in deterministic (id) order.
// Returns ErrNotInitialized before Initialize completes, so callers can
// distinguish "no modules installed" from "not ready yet".
func (r *Registry) All() ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return nil, oops.Code("REGISTRY_NOT_INITIALIZED").Wrap(ErrNotInitialized)
	}

	defs := make([]Definition, len(r.order))
	for i, id := range r.order {
		defs[i] = r.defs[id]
	}
	return defs, nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return Definition{}, oops.Code("REGISTRY_NOT_INITIALIZED").Wrap(ErrNotInitialized)
	}
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return def, nil
}

// Factory returns the instance factory for id.
func (r *Registry) Factory(id string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return nil, oops.Code("REGISTRY_NOT_INITIALIZED").Wrap(ErrNotInitialized)
	}
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return factory, nil
}

// Count returns the number of loaded definitions, or 0 before initialization.
// Unlike All, it never errors; diagnostics degrade the count instead of
// failing the whole response.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return 0
	}
	return len(r.order)
}

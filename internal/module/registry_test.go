// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package module_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/patchbay/patchbay/internal/module"
)

// fakeLoader loads modules from a canned table keyed by directory base name.
type fakeLoader struct {
	mu      sync.Mutex
	defs    map[string]module.Definition
	failing map[string]error
	loads   int
}

func (l *fakeLoader) Load(_ context.Context, dir string) (module.Definition, module.Factory, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()

	name := filepath.Base(dir)
	if err, ok := l.failing[name]; ok {
		return module.Definition{}, nil, err
	}
	def, ok := l.defs[name]
	if !ok {
		return module.Definition{}, nil, fmt.Errorf("no manifest in %s", dir)
	}
	return def, fakeFactory{}, nil
}

type fakeFactory struct{}

func (fakeFactory) New(context.Context, map[string]string) (module.Instance, error) {
	return nil, errors.New("not runnable in this test")
}

// modulesDir creates a directory with one subdirectory per name.
func modulesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o750))
	}
	return dir
}

func TestRegistry_ReadsBeforeInitialize(t *testing.T) {
	reg := module.NewRegistry(t.TempDir(), &fakeLoader{})

	_, err := reg.All()
	assert.ErrorIs(t, err, module.ErrNotInitialized)

	_, err = reg.Get("anything")
	assert.ErrorIs(t, err, module.ErrNotInitialized)

	_, err = reg.Factory("anything")
	assert.ErrorIs(t, err, module.ErrNotInitialized)

	// Count degrades instead of erroring
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_Initialize(t *testing.T) {
	loader := &fakeLoader{
		defs: map[string]module.Definition{
			"beta":  {ID: "beta", Name: "Beta"},
			"alpha": {ID: "alpha", Name: "Alpha"},
		},
	}
	dir := modulesDir(t, "beta", "alpha")
	reg := module.NewRegistry(dir, loader)

	require.NoError(t, reg.Initialize(context.Background()))

	defs, err := reg.All()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	// Deterministic id order
	assert.Equal(t, "alpha", defs[0].ID)
	assert.Equal(t, "beta", defs[1].ID)
	assert.Equal(t, 2, reg.Count())

	def, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", def.Name)

	factory, err := reg.Factory("alpha")
	require.NoError(t, err)
	assert.NotNil(t, factory)

	_, err = reg.Get("gamma")
	assert.ErrorIs(t, err, module.ErrUnknownModule)
}

func TestRegistry_FailedLoadSkipsOnlyThatModule(t *testing.T) {
	loader := &fakeLoader{
		defs: map[string]module.Definition{
			"good":      {ID: "good"},
			"also-good": {ID: "also-good"},
		},
		failing: map[string]error{
			"broken": errors.New("manifest is garbage"),
		},
	}
	dir := modulesDir(t, "good", "broken", "also-good")
	reg := module.NewRegistry(dir, loader)

	require.NoError(t, reg.Initialize(context.Background()))

	defs, err := reg.All()
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestRegistry_MissingModulesDir(t *testing.T) {
	reg := module.NewRegistry(filepath.Join(t.TempDir(), "nope"), &fakeLoader{})

	require.NoError(t, reg.Initialize(context.Background()))

	defs, err := reg.All()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestRegistry_NonDirectoryEntriesIgnored(t *testing.T) {
	dir := modulesDir(t, "good")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o600))

	loader := &fakeLoader{defs: map[string]module.Definition{"good": {ID: "good"}}}
	reg := module.NewRegistry(dir, loader)

	require.NoError(t, reg.Initialize(context.Background()))
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 1, loader.loads)
}

func TestRegistry_DuplicateIDSkipped(t *testing.T) {
	loader := &fakeLoader{
		defs: map[string]module.Definition{
			"one": {ID: "same"},
			"two": {ID: "same"},
		},
	}
	dir := modulesDir(t, "one", "two")
	reg := module.NewRegistry(dir, loader)

	require.NoError(t, reg.Initialize(context.Background()))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_ReinitializeRebuildsCatalog(t *testing.T) {
	loader := &fakeLoader{defs: map[string]module.Definition{"a": {ID: "a"}}}
	dir := modulesDir(t, "a")
	reg := module.NewRegistry(dir, loader)

	require.NoError(t, reg.Initialize(context.Background()))
	assert.Equal(t, 1, reg.Count())

	// A second module appears between initializations
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0o750))
	loader.mu.Lock()
	loader.defs["b"] = module.Definition{ID: "b"}
	loader.mu.Unlock()

	require.NoError(t, reg.Initialize(context.Background()))
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_BoundedParallelism(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	loader := loaderFunc(func(_ context.Context, dir string) (module.Definition, module.Factory, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			current--
			mu.Unlock()
		}()
		return module.Definition{ID: filepath.Base(dir)}, fakeFactory{}, nil
	})

	names := make([]string, 16)
	for i := range names {
		names[i] = fmt.Sprintf("mod-%02d", i)
	}
	dir := modulesDir(t, names...)

	reg := module.NewRegistry(dir, loader, module.WithLoadParallelism(2))
	require.NoError(t, reg.Initialize(context.Background()))

	assert.Equal(t, 16, reg.Count())
	assert.LessOrEqual(t, peak, 2)
}

// loaderFunc adapts a function to the Loader interface.
type loaderFunc func(ctx context.Context, dir string) (module.Definition, module.Factory, error)

func (f loaderFunc) Load(ctx context.Context, dir string) (module.Definition, module.Factory, error) {
	return f(ctx, dir)
}

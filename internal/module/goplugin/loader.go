// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package goplugin loads module packages as isolated child processes using
// HashiCorp's go-plugin system over net/rpc.
package goplugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/pkg/modsdk"
)

// PluginClient wraps the go-plugin client for testability.
type PluginClient interface {
	// Client returns the RPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the module process.
	Kill()
}

// ClientFactory creates module clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig: modsdk.HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			modsdk.PluginName: &modsdk.ModulePlugin{},
		},
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath resolved from module manifest; manifests validated during discovery
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
	})
}

// Loader loads module packages from disk. It is stateless and reusable: a
// load failure never affects subsequent calls.
type Loader struct {
	clientFactory ClientFactory
}

// Compile-time interface check.
var _ module.Loader = (*Loader)(nil)

// NewLoader creates a loader spawning real module processes.
func NewLoader() *Loader {
	return &Loader{clientFactory: &DefaultClientFactory{}}
}

// NewLoaderWithFactory creates a loader with a custom client factory (for testing).
// Panics if factory is nil.
func NewLoaderWithFactory(factory ClientFactory) *Loader {
	if factory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return &Loader{clientFactory: factory}
}

// Load reads and validates <dir>/module.yaml and returns the module's
// definition plus a factory for running instances. The module process is not
// started here; the manifest alone describes the module.
func (l *Loader) Load(_ context.Context, dir string) (module.Definition, module.Factory, error) {
	loadErr := oops.Code("MODULE_LOAD_FAILED").With("dir", dir)

	manifestPath := filepath.Join(dir, module.ManifestFileName)
	data, err := os.ReadFile(manifestPath) //nolint:gosec // path is constructed from discovery entries
	if err != nil {
		return module.Definition{}, nil, loadErr.Wrapf(err, "read manifest %s", manifestPath)
	}

	if err := module.ValidateSchema(data); err != nil {
		return module.Definition{}, nil, loadErr.Wrapf(err, "manifest schema: %s", module.FormatSchemaError(err))
	}

	manifest, err := module.ParseManifest(data)
	if err != nil {
		return module.Definition{}, nil, loadErr.Wrapf(err, "parse manifest")
	}

	def := manifest.Definition(dir)

	execPath := filepath.Join(dir, def.Executable)
	info, err := os.Stat(execPath)
	if err != nil {
		return module.Definition{}, nil, loadErr.Wrapf(err, "module executable %s", execPath)
	}
	if !info.Mode().IsRegular() || info.Mode()&0o111 == 0 {
		return module.Definition{}, nil, loadErr.Errorf("module executable %s is not executable", execPath)
	}

	return def, &factory{def: def, clientFactory: l.clientFactory}, nil
}

// factory produces running instances of one loaded module.
type factory struct {
	def           module.Definition
	clientFactory ClientFactory
}

// New starts the module process, configures it with the supplied settings,
// and starts it. Any failure kills the child process before returning.
func (f *factory) New(ctx context.Context, settings map[string]string) (module.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("module %s: %w", f.def.ID, err)
	}

	startErr := oops.Code("MODULE_START_FAILED").With("module", f.def.ID)

	client := f.clientFactory.NewClient(filepath.Join(f.def.Dir, f.def.Executable))

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, startErr.Wrapf(err, "connect to module %s", f.def.ID)
	}

	raw, err := rpcClient.Dispense(modsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, startErr.Wrapf(err, "dispense module %s", f.def.ID)
	}

	mod, ok := raw.(modsdk.Module)
	if !ok {
		client.Kill()
		return nil, startErr.Errorf("module %s does not implement the module protocol", f.def.ID)
	}

	if err := mod.Configure(settings); err != nil {
		client.Kill()
		return nil, startErr.Wrapf(err, "configure module %s", f.def.ID)
	}

	if err := mod.Start(); err != nil {
		client.Kill()
		return nil, startErr.Wrapf(err, "start module %s", f.def.ID)
	}

	return &instance{def: f.def, client: client, mod: mod}, nil
}

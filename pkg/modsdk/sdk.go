// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package modsdk provides the SDK for building Patchbay modules.
//
// Modules are standalone executables that communicate with the Patchbay host
// via net/rpc using the HashiCorp go-plugin framework. Each module runs in its
// own process, so a crash or misbehaving static initializer in one module
// cannot corrupt the host or any other module.
//
// Example usage:
//
//	package main
//
//	import "github.com/patchbay/patchbay/pkg/modsdk"
//
//	type Greeter struct {
//		actions *modsdk.ActionRegistry
//	}
//
//	func (g *Greeter) Configure(settings map[string]string) error { return nil }
//	func (g *Greeter) Start() error                               { return nil }
//	func (g *Greeter) Stop() error                                { return nil }
//	func (g *Greeter) Actions() ([]modsdk.ActionState, error)     { return g.actions.States(), nil }
//	func (g *Greeter) Invoke(key string, wait bool) error         { return g.actions.Invoke(key, wait) }
//
//	func main() {
//		modsdk.Serve(&modsdk.ServeConfig{Module: &Greeter{actions: modsdk.NewActionRegistry()}})
//	}
package modsdk

import (
	hashiplug "github.com/hashicorp/go-plugin"
)

// PluginName is the dispense name shared by host and modules.
const PluginName = "module"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and modules must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PATCHBAY_MODULE",
	MagicCookieValue: "patchbay-v1",
}

// ActionState is a point-in-time view of one registered action.
type ActionState struct {
	Key     string
	Label   string
	Enabled bool
}

// Module is the interface module authors implement.
type Module interface {
	// Configure binds the setting values the session supplies. It is called
	// once, before Start.
	Configure(settings map[string]string) error
	// Start begins the module's work.
	Start() error
	// Stop shuts the module down. Called at most once, after Start.
	Stop() error
	// Actions returns the current state of the module's actions.
	Actions() ([]ActionState, error)
	// Invoke triggers an action by key. With wait set, it blocks until the
	// action handler completes and returns its error; otherwise it returns
	// once the invocation is accepted.
	Invoke(key string, wait bool) error
}

// ServeConfig configures the module server.
type ServeConfig struct {
	// Module is the module implementation.
	// Required; Serve will panic if nil.
	Module Module
}

// Serve starts the module server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("modsdk: config cannot be nil")
	}
	if config.Module == nil {
		panic("modsdk: config.Module cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &ModulePlugin{Impl: config.Module},
		},
	})
}

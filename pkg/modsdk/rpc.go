// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package modsdk

import (
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"
)

// ModulePlugin implements go-plugin's Plugin interface over net/rpc.
// The host dispenses a Module client from it; the module process serves
// its Impl through it.
type ModulePlugin struct {
	// Impl is used by the module process (not used by the host side).
	Impl Module
}

// Server returns the RPC server for this plugin (called in the module process).
func (p *ModulePlugin) Server(_ *hashiplug.MuxBroker) (any, error) {
	return &moduleRPCServer{impl: p.Impl}, nil
}

// Client returns the host-side Module implementation backed by c.
func (p *ModulePlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (any, error) {
	return &moduleRPCClient{client: c}, nil
}

// Wire types. net/rpc encodes these with gob; keep them flat and exported.

// ConfigureArgs carries the setting values bound at session activation.
type ConfigureArgs struct {
	Settings map[string]string
}

// InvokeArgs identifies one action invocation.
type InvokeArgs struct {
	Key  string
	Wait bool
}

// ActionsReply carries the current action states.
type ActionsReply struct {
	Actions []ActionState
}

// Empty is a placeholder for calls without payload.
type Empty struct{}

// moduleRPCServer serves a Module implementation over net/rpc.
type moduleRPCServer struct {
	impl Module
}

func (s *moduleRPCServer) Configure(args ConfigureArgs, _ *Empty) error {
	return s.impl.Configure(args.Settings)
}

func (s *moduleRPCServer) Start(_ Empty, _ *Empty) error {
	return s.impl.Start()
}

func (s *moduleRPCServer) Stop(_ Empty, _ *Empty) error {
	return s.impl.Stop()
}

func (s *moduleRPCServer) Actions(_ Empty, reply *ActionsReply) error {
	actions, err := s.impl.Actions()
	if err != nil {
		return err
	}
	reply.Actions = actions
	return nil
}

func (s *moduleRPCServer) Invoke(args InvokeArgs, _ *Empty) error {
	return s.impl.Invoke(args.Key, args.Wait)
}

// moduleRPCClient is the host-side Module backed by the module process.
type moduleRPCClient struct {
	client *rpc.Client
}

// Compile-time interface check.
var _ Module = (*moduleRPCClient)(nil)

func (c *moduleRPCClient) Configure(settings map[string]string) error {
	return c.client.Call("Plugin.Configure", ConfigureArgs{Settings: settings}, &Empty{})
}

func (c *moduleRPCClient) Start() error {
	return c.client.Call("Plugin.Start", Empty{}, &Empty{})
}

func (c *moduleRPCClient) Stop() error {
	return c.client.Call("Plugin.Stop", Empty{}, &Empty{})
}

func (c *moduleRPCClient) Actions() ([]ActionState, error) {
	var reply ActionsReply
	if err := c.client.Call("Plugin.Actions", Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply.Actions, nil
}

func (c *moduleRPCClient) Invoke(key string, wait bool) error {
	return c.client.Call("Plugin.Invoke", InvokeArgs{Key: key, Wait: wait}, &Empty{})
}

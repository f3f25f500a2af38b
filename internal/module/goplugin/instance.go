// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package goplugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/pkg/modsdk"
)

// instance is a running module process.
type instance struct {
	def    module.Definition
	client PluginClient
	mod    modsdk.Module

	stopOnce sync.Once
	stopErr  error
}

// Compile-time interface check.
var _ module.Instance = (*instance)(nil)

// Actions returns the module's current action states. The query respects ctx
// cancellation; the in-flight RPC is abandoned on cancel and fails when the
// process exits.
func (i *instance) Actions(ctx context.Context) ([]module.ActionState, error) {
	type reply struct {
		states []modsdk.ActionState
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		states, err := i.mod.Actions()
		done <- reply{states: states, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("module %s actions: %w", i.def.ID, r.err)
		}
		out := make([]module.ActionState, len(r.states))
		for idx, s := range r.states {
			out[idx] = module.ActionState{Key: s.Key, Label: s.Label, Enabled: s.Enabled}
		}
		return out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("module %s actions: %w", i.def.ID, ctx.Err())
	}
}

// Invoke triggers an action. Awaited invocations respect ctx cancellation;
// the in-flight RPC is abandoned on cancel and fails when the process exits.
func (i *instance) Invoke(ctx context.Context, key string, wait bool) error {
	if !wait {
		if err := i.mod.Invoke(key, false); err != nil {
			return fmt.Errorf("module %s invoke %s: %w", i.def.ID, key, err)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- i.mod.Invoke(key, true)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("module %s invoke %s: %w", i.def.ID, key, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("module %s invoke %s: %w", i.def.ID, key, ctx.Err())
	}
}

// Stop calls the module's shutdown hook, then kills the child process.
// The process is killed even when the hook fails or the ctx expires, so the
// isolation boundary never outlives the session.
func (i *instance) Stop(ctx context.Context) error {
	i.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- i.mod.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				i.stopErr = fmt.Errorf("module %s stop: %w", i.def.ID, err)
			}
		case <-ctx.Done():
			i.stopErr = fmt.Errorf("module %s stop: %w", i.def.ID, ctx.Err())
		}

		i.client.Kill()
	})
	return i.stopErr
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package modsdk

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrUnknownAction is returned when invoking an action that isn't registered.
	ErrUnknownAction = errors.New("unknown action")
	// ErrActionDisabled is returned when invoking a disabled action.
	ErrActionDisabled = errors.New("action disabled")
)

// Handler is called when an action is invoked.
type Handler func() error

// Action is a named, independently labeled and enabled unit of interactive
// behavior. Label and enabled state are live values; subscribers observe
// changes and invocations through Watch.
type Action struct {
	key string

	mu       sync.Mutex
	label    string
	enabled  bool
	handler  Handler
	watchers map[int]func(ActionState)
	nextID   int
}

// Key returns the action's registration key.
func (a *Action) Key() string { return a.key }

// Label returns the current display label.
func (a *Action) Label() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.label
}

// SetLabel updates the display label and notifies watchers.
func (a *Action) SetLabel(label string) {
	a.mu.Lock()
	a.label = label
	state := a.stateLocked()
	watchers := a.watchersLocked()
	a.mu.Unlock()

	for _, w := range watchers {
		w(state)
	}
}

// Enabled returns whether the action currently accepts invocations.
func (a *Action) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled updates the enabled state and notifies watchers.
func (a *Action) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	state := a.stateLocked()
	watchers := a.watchersLocked()
	a.mu.Unlock()

	for _, w := range watchers {
		w(state)
	}
}

// OnInvoke sets the handler called when the action is invoked.
func (a *Action) OnInvoke(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Watch subscribes to label/enabled changes and invocations. The returned
// function cancels the subscription.
func (a *Action) Watch(fn func(ActionState)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.watchers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.watchers, id)
	}
}

// State returns the current ActionState snapshot.
func (a *Action) State() ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Action) stateLocked() ActionState {
	return ActionState{Key: a.key, Label: a.label, Enabled: a.enabled}
}

func (a *Action) watchersLocked() []func(ActionState) {
	ws := make([]func(ActionState), 0, len(a.watchers))
	for _, w := range a.watchers {
		ws = append(ws, w)
	}
	return ws
}

// invoke runs the handler and notifies watchers of the invocation.
func (a *Action) invoke() error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActionDisabled, a.key)
	}
	handler := a.handler
	state := a.stateLocked()
	watchers := a.watchersLocked()
	a.mu.Unlock()

	for _, w := range watchers {
		w(state)
	}

	if handler == nil {
		return nil
	}
	return handler()
}

// ActionRegistry holds a module instance's actions. It is safe for concurrent
// use. Actions live as long as the registry; the host sees them only while
// the owning module instance runs.
type ActionRegistry struct {
	mu      sync.Mutex
	actions map[string]*Action
	order   []string
}

// NewActionRegistry creates an empty action registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions: make(map[string]*Action),
	}
}

// Register adds an action with the given key and initial label. The action
// starts enabled. Registering an existing key returns the existing action.
func (r *ActionRegistry) Register(key, label string) *Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actions[key]; ok {
		return a
	}
	a := &Action{
		key:      key,
		label:    label,
		enabled:  true,
		watchers: make(map[int]func(ActionState)),
	}
	r.actions[key] = a
	r.order = append(r.order, key)
	return a
}

// Get returns the action for key, if registered.
func (r *ActionRegistry) Get(key string) (*Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[key]
	return a, ok
}

// States returns the current state of every action in registration order.
func (r *ActionRegistry) States() []ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]ActionState, len(r.order))
	for i, key := range r.order {
		states[i] = r.actions[key].State()
	}
	return states
}

// Invoke triggers the action for key. With wait set, the handler runs
// synchronously and its error is returned. Without wait, the handler runs in
// a background goroutine and Invoke returns once the invocation is accepted.
//
// Concurrent awaited invocations of the same action run concurrently;
// serializing them is the handler's concern.
func (r *ActionRegistry) Invoke(key string, wait bool) error {
	r.mu.Lock()
	a, ok := r.actions[key]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, key)
	}

	if wait {
		return a.invoke()
	}

	// Fire-and-forget: failures have no caller to report to.
	go func() { _ = a.invoke() }()
	return nil
}

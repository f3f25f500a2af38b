// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
)

var tracer = otel.Tracer("patchbay/session")

// Sentinel errors for programmatic error checking.
var (
	// ErrValidationFailed is returned when error-level validation results
	// block an activation. The ActivationResult carries the details.
	ErrValidationFailed = errors.New("preset validation failed")
	// ErrNoActiveSession is returned for operations that need a running session.
	ErrNoActiveSession = errors.New("no active session")
)

// Manager owns the single ActiveSession slot. Activation and deactivation are
// serialized; diagnostics reads observe a consistent snapshot without waiting
// on in-flight transitions.
//
// Invariant: zero or one active session exists at any observable instant.
// Activating on top of an active session deactivates the prior session fully
// before the new one starts.
type Manager struct {
	catalog  Catalog
	logger   *slog.Logger
	listener StateListener

	// mu serializes Activate and Deactivate.
	mu     sync.Mutex
	active *activeSession

	// snapMu guards the snapshot fields published to diagnostics readers.
	snapMu sync.RWMutex
	snap   Snapshot
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStateListener registers a callback observing state transitions.
func WithStateListener(fn StateListener) ManagerOption {
	return func(m *Manager) {
		m.listener = fn
	}
}

// NewManager creates a session manager resolving modules from catalog.
// Panics if catalog is nil.
func NewManager(catalog Catalog, opts ...ManagerOption) *Manager {
	if catalog == nil {
		panic("session: catalog cannot be nil")
	}
	m := &Manager{
		catalog: catalog,
		logger:  slog.Default(),
		snap:    Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Activate validates and starts every enabled module of p. If a session is
// already active it is fully deactivated first.
//
// Any error-level validation result blocks the whole activation: no instance
// is started and ErrValidationFailed is returned alongside the aggregated
// results. An instantiation failure during Starting aborts atomically;
// already-started instances are torn down before the error is reported.
func (m *Manager) Activate(ctx context.Context, p preset.Preset) (result *ActivationResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := tracer.Start(ctx, "session.activate",
		trace.WithAttributes(
			attribute.String("preset.id", p.ID),
			attribute.String("preset.name", p.Name),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if m.active != nil {
		m.deactivateLocked(ctx)
	}

	m.publish(StateValidating, nil)

	result = &ActivationResult{}
	type pending struct {
		id       string
		factory  module.Factory
		settings map[string]string
	}
	var toStart []pending

	for _, cm := range p.Modules {
		if !cm.Enabled {
			continue
		}

		def, err := m.catalog.Get(cm.ModuleID)
		if err != nil {
			// A missing definition is a validation error for this module,
			// not a hard failure of the whole activation.
			result.Results = append(result.Results, module.ValidationResult{
				Level:    module.LevelError,
				ModuleID: cm.ModuleID,
				Message:  err.Error(),
			})
			continue
		}

		result.Results = append(result.Results, module.ValidateSettings(def, cm.Settings)...)

		factory, err := m.catalog.Factory(cm.ModuleID)
		if err != nil {
			result.Results = append(result.Results, module.ValidationResult{
				Level:    module.LevelError,
				ModuleID: cm.ModuleID,
				Message:  err.Error(),
			})
			continue
		}

		toStart = append(toStart, pending{
			id:       cm.ModuleID,
			factory:  factory,
			settings: module.ApplyDefaults(def, cm.Settings),
		})
	}

	if result.HasErrors() {
		m.publish(StateFailed, nil)
		m.publish(StateIdle, nil)
		return result, oops.Code("VALIDATION_FAILED").
			With("preset", p.ID).
			Wrap(ErrValidationFailed)
	}

	m.publish(StateStarting, nil)

	started := make([]runningModule, 0, len(toStart))
	for _, pend := range toStart {
		inst, err := pend.factory.New(ctx, pend.settings)
		if err != nil {
			// All-or-nothing: tear down whatever already started.
			m.stopModules(ctx, started)
			m.publish(StateFailed, nil)
			m.publish(StateIdle, nil)
			return result, oops.Code("SESSION_ACTIVATION_FAILED").
				With("preset", p.ID).
				With("module", pend.id).
				Wrapf(err, "failed to start module %s", pend.id)
		}
		started = append(started, runningModule{id: pend.id, instance: inst})
	}

	m.active = &activeSession{preset: p, modules: started}
	m.publish(StateRunning, m.active)

	m.logger.Info("session activated",
		"preset", p.ID,
		"name", p.Name,
		"modules", len(started))

	return result, nil
}

// Deactivate stops the active session's modules and returns the manager to
// Idle. Deactivating with no active session is a no-op.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	m.deactivateLocked(ctx)
	return nil
}

// deactivateLocked performs the Stopping transition. Shutdown is best-effort
// per module; a single module's failure never blocks the others, and the
// manager always reaches Idle.
func (m *Manager) deactivateLocked(ctx context.Context) {
	active := m.active
	m.publish(StateStopping, active)

	m.stopModules(ctx, active.modules)

	m.active = nil
	m.publish(StateIdle, nil)

	m.logger.Info("session deactivated",
		"preset", active.preset.ID,
		"name", active.preset.Name)
}

// stopModules stops instances in reverse start order, logging failures.
func (m *Manager) stopModules(ctx context.Context, mods []runningModule) {
	for i := len(mods) - 1; i >= 0; i-- {
		rm := mods[i]
		if err := rm.instance.Stop(ctx); err != nil {
			m.logger.Warn("module shutdown failed",
				"module", rm.id,
				"error", err)
		}
	}
}

// Snapshot returns a consistent view for diagnostics readers. It does not
// wait on in-flight activations.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// ActiveCount returns 1 while a session is running, else 0.
func (m *Manager) ActiveCount() int {
	if m.Snapshot().State == StateRunning {
		return 1
	}
	return 0
}

// Actions returns the live action states of one running module.
func (m *Manager) Actions(ctx context.Context, moduleID string) ([]module.ActionState, error) {
	m.mu.Lock()
	inst, err := m.instanceLocked(moduleID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// The query runs outside the manager lock so a hung module cannot block
	// deactivation or a later activation.
	return inst.Actions(ctx)
}

// Invoke triggers an action on one running module. With wait set it blocks
// until the module's handler completes.
func (m *Manager) Invoke(ctx context.Context, moduleID, key string, wait bool) error {
	m.mu.Lock()
	inst, err := m.instanceLocked(moduleID)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	// The invocation itself runs outside the manager lock so a slow handler
	// cannot block deactivation of other modules.
	return inst.Invoke(ctx, key, wait)
}

func (m *Manager) instanceLocked(moduleID string) (module.Instance, error) {
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	for _, rm := range m.active.modules {
		if rm.id == moduleID {
			return rm.instance, nil
		}
	}
	return nil, oops.Code("MODULE_NOT_IN_SESSION").
		With("module", moduleID).
		Errorf("module %s is not part of the active session", moduleID)
}

// publish records a state transition for snapshot readers and the listener.
func (m *Manager) publish(state State, active *activeSession) {
	snap := Snapshot{State: state}
	if active != nil {
		snap.PresetID = active.preset.ID
		snap.PresetName = active.preset.Name
		snap.Modules = len(active.modules)
	}

	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()

	if m.listener != nil {
		m.listener(state)
	}
}

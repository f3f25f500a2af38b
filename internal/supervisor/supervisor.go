// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package supervisor manages the Patchbay host as an operating-system
// process: reachability probes, start/stop/restart, and escalation when a
// graceful stop does not complete.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/patchbay/patchbay/internal/xdg"
)

// probeTimeout bounds a single reachability round trip.
const probeTimeout = 2 * time.Second

// pollInterval seeds the backoff used while waiting for readiness/shutdown.
const pollInterval = 100 * time.Millisecond

// Sentinel errors for programmatic error checking.
var (
	// ErrStopForced reports a stop that escalated to forced termination.
	// The host is down, but the outcome is degraded, not silent success.
	ErrStopForced = errors.New("host terminated forcefully")
	// errNotReady drives the readiness retry loop.
	errNotReady = errors.New("host not ready")
	// errStillReachable drives the shutdown retry loop.
	errStillReachable = errors.New("host still reachable")
)

// HostProbe is the control-channel surface the supervisor needs.
type HostProbe interface {
	// IsReachable attempts a lightweight round trip; it never errors.
	IsReachable(ctx context.Context, timeout time.Duration) bool
	// Shutdown requests a graceful host shutdown.
	Shutdown(ctx context.Context) error
}

// Launcher spawns the host process and reports its pid.
type Launcher interface {
	Launch(ctx context.Context) (int, error)
}

// pidRecord identifies one spawned host: the OS pid plus a spawn token so a
// stale record from a prior host instance is never mistaken for the current
// one.
type pidRecord struct {
	pid   int
	token string
}

// Supervisor serializes start/stop/restart for one host identity.
// Concurrent Start calls wait on the in-flight attempt instead of spawning a
// duplicate process.
type Supervisor struct {
	probe    HostProbe
	launcher Launcher
	pidPath  string
	kill     func(pid int) error
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithLauncher overrides the process launcher (for tests).
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithPidPath overrides the pidfile location.
func WithPidPath(path string) Option {
	return func(s *Supervisor) { s.pidPath = path }
}

// WithKiller overrides forced termination (for tests).
func WithKiller(kill func(pid int) error) Option {
	return func(s *Supervisor) { s.kill = kill }
}

// WithLogger sets the supervisor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// DefaultPidPath returns the host pidfile location.
func DefaultPidPath() string {
	return filepath.Join(xdg.RuntimeDir(), "patchbay-host.pid")
}

// New creates a supervisor for the host behind probe.
// Panics if probe is nil.
func New(probe HostProbe, opts ...Option) *Supervisor {
	if probe == nil {
		panic("supervisor: probe cannot be nil")
	}
	s := &Supervisor{
		probe:   probe,
		pidPath: DefaultPidPath(),
		kill:    killProcess,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = &execLauncher{}
	}
	return s
}

// IsReachable reports whether the host answers its health probe within
// timeout. Unreachability is a normal outcome, never an error.
func (s *Supervisor) IsReachable(ctx context.Context, timeout time.Duration) bool {
	return s.probe.IsReachable(ctx, timeout)
}

// Start ensures the host process is running. When the host is already
// reachable and forceRestart is false, Start is a no-op. With forceRestart it
// stops the running host first. Only one launch attempt is ever in flight; a
// concurrent Start waits and then observes the first attempt's outcome.
func (s *Supervisor) Start(ctx context.Context, forceRestart bool, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, forceRestart, timeout)
}

func (s *Supervisor) startLocked(ctx context.Context, forceRestart bool, timeout time.Duration) error {
	if s.probe.IsReachable(ctx, probeTimeout) {
		if !forceRestart {
			return nil
		}
		if err := s.stopLocked(ctx, timeout); err != nil && !errors.Is(err, ErrStopForced) {
			return err
		}
	}

	pid, err := s.launcher.Launch(ctx)
	if err != nil {
		return oops.Code("HOST_START_FAILED").Wrapf(err, "failed to launch host process")
	}

	rec := pidRecord{pid: pid, token: ulid.Make().String()}
	if err := s.writePidFile(rec); err != nil {
		s.logger.Warn("failed to write host pidfile", "error", err)
	}

	s.logger.Info("host process launched", "pid", pid)

	backoff := retry.WithMaxDuration(timeout, retry.NewFibonacci(pollInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if s.probe.IsReachable(ctx, probeTimeout) {
			return nil
		}
		return retry.RetryableError(errNotReady)
	})
	if err != nil {
		return oops.Code("HOST_START_TIMEOUT").
			With("pid", pid).
			Wrapf(err, "host did not become reachable within %s", timeout)
	}
	return nil
}

// Stop requests a graceful shutdown and waits for the host to become
// unreachable. If that does not happen within timeout, Stop escalates to
// forced termination and reports ErrStopForced. Stopping an already-stopped
// host is a no-op.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx, timeout)
}

// Restart stops then starts the host as one logical operation. A failure
// between the halves leaves the system stopped, never assumed running.
func (s *Supervisor) Restart(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(ctx, timeout); err != nil && !errors.Is(err, ErrStopForced) {
		return err
	}
	return s.startLocked(ctx, false, timeout)
}

func (s *Supervisor) stopLocked(ctx context.Context, timeout time.Duration) error {
	if !s.probe.IsReachable(ctx, probeTimeout) {
		// Already stopped; clear any stale pidfile.
		s.removePidFile()
		return nil
	}

	// Record the identity we are stopping before requesting shutdown, so a
	// host spawned meanwhile by another supervisor process is never the one
	// we escalate against.
	rec, pidKnown := s.readPidFile()

	if err := s.probe.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown request failed", "error", err)
	}

	backoff := retry.WithMaxDuration(timeout, retry.NewFibonacci(pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !s.probe.IsReachable(ctx, probeTimeout) {
			return nil
		}
		return retry.RetryableError(errStillReachable)
	})
	if err == nil {
		s.removePidFile()
		return nil
	}

	if !pidKnown {
		return oops.Code("HOST_STOP_FAILED").
			Errorf("host still reachable after %s and no pidfile to escalate against", timeout)
	}

	current, ok := s.readPidFile()
	if !ok || current != rec {
		return oops.Code("HOST_STOP_FAILED").
			With("pid", rec.pid).
			Errorf("host process changed identity during stop; not escalating")
	}

	if err := s.kill(rec.pid); err != nil {
		return oops.Code("HOST_STOP_FAILED").
			With("pid", rec.pid).
			Wrapf(err, "forced termination failed")
	}
	s.removePidFile()

	s.logger.Warn("host stop escalated to forced termination", "pid", rec.pid)
	return fmt.Errorf("%w (pid %d)", ErrStopForced, rec.pid)
}

func (s *Supervisor) writePidFile(rec pidRecord) error {
	if err := xdg.EnsureDir(filepath.Dir(s.pidPath)); err != nil {
		return err
	}
	content := fmt.Sprintf("%d %s\n", rec.pid, rec.token)
	if err := os.WriteFile(s.pidPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write pidfile %s: %w", s.pidPath, err)
	}
	return nil
}

func (s *Supervisor) readPidFile() (pidRecord, bool) {
	data, err := os.ReadFile(s.pidPath)
	if err != nil {
		return pidRecord{}, false
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return pidRecord{}, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return pidRecord{}, false
	}
	return pidRecord{pid: pid, token: fields[1]}, true
}

func (s *Supervisor) removePidFile() {
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove host pidfile",
			"path", s.pidPath,
			"error", err)
	}
}

// killProcess forcefully terminates pid.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

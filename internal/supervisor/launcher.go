// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/patchbay/patchbay/internal/xdg"
)

// execLauncher spawns the host by re-executing the current binary with the
// "host" subcommand, detached into its own session so it outlives the CLI.
type execLauncher struct {
	// extraArgs are appended after the "host" subcommand.
	extraArgs []string
}

// NewExecLauncher creates a launcher passing extraArgs to the host command.
func NewExecLauncher(extraArgs ...string) Launcher {
	return &execLauncher{extraArgs: extraArgs}
}

// Launch starts the host process and returns its pid. The child's output
// goes to a log file in the state directory; the control channel is the
// supervision surface, not stdio.
func (l *execLauncher) Launch(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("launch host: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve own executable: %w", err)
	}

	if err := xdg.EnsureDir(xdg.StateDir()); err != nil {
		return 0, err
	}
	logPath := filepath.Join(xdg.StateDir(), "host.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path under our own state dir
	if err != nil {
		return 0, fmt.Errorf("open host log %s: %w", logPath, err)
	}
	defer func() { _ = logFile.Close() }()

	args := append([]string{"host"}, l.extraArgs...)
	cmd := exec.Command(self, args...) // #nosec G204 -- re-executes our own binary
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start host process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release host process: %w", err)
	}
	return pid, nil
}

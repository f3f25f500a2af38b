// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchbay/patchbay/internal/config"
	"github.com/patchbay/patchbay/internal/control"
	"github.com/patchbay/patchbay/internal/logging"
	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/module/goplugin"
	"github.com/patchbay/patchbay/internal/observability"
	"github.com/patchbay/patchbay/internal/preset"
	"github.com/patchbay/patchbay/internal/session"
)

// shutdownTimeout bounds the graceful teardown of host subsystems.
const shutdownTimeout = 10 * time.Second

// HostDeps allows tests to inject alternative implementations.
// If a field is nil, the default implementation is used.
type HostDeps struct {
	Loader                     module.Loader
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) *observability.Server
}

// NewHostCmd creates the host subcommand.
func NewHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the Patchbay host process",
		Long: `Run the host process which discovers installed modules, serves the
control socket, and executes module instances for the active session.
Normally launched by 'patchbay start' rather than invoked directly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if socketPath != "" {
				cfg.ControlSocket = socketPath
			}
			return runHostWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	// Flag names mirror the config file keys so overrides line up one-to-one.
	cmd.Flags().String(config.KeyModulesDir, "", "directory scanned for installed modules")
	cmd.Flags().String(config.KeyPresetsPath, "", "preset store file")
	cmd.Flags().String(config.KeyMetricsAddr, "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String(config.KeyLogFormat, "", "log format (json or text)")

	return cmd
}

// runHostWithDeps starts the host with injectable dependencies.
func runHostWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *HostDeps) error {
	if deps == nil {
		deps = &HostDeps{}
	}
	if deps.Loader == nil {
		deps.Loader = goplugin.NewLoader()
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = observability.NewServer
	}

	logging.SetDefault("patchbay-host", version, cfg.LogFormat)

	slog.Info("starting host process",
		"modules_dir", cfg.ModulesDir,
		"presets_path", cfg.PresetsPath,
		"log_format", cfg.LogFormat,
	)

	registry := module.NewRegistry(cfg.ModulesDir, deps.Loader)
	store := preset.NewFileStore(cfg.PresetsPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Registry initialization marks readiness; the control socket comes up
	// first so diagnostics answer while modules are still loading.
	var registryReady atomic.Bool

	// Start observability server if configured
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, registryReady.Load)
		metrics = obsServer.Metrics()
		if err := obsServer.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	manager := session.NewManager(registry,
		session.WithStateListener(func(state session.State) {
			if metrics == nil {
				return
			}
			switch state {
			case session.StateRunning:
				metrics.SessionActive.Set(1)
				metrics.ActivationsTotal.WithLabelValues("success").Inc()
			case session.StateFailed:
				metrics.SessionActive.Set(0)
				metrics.ActivationsTotal.WithLabelValues("failure").Inc()
			case session.StateIdle:
				metrics.SessionActive.Set(0)
			}
		}),
	)

	controlServer := control.NewServer(control.ServerConfig{
		Version:    version,
		SocketPath: cfg.ControlSocket,
		Presets:    store,
		Sessions:   manager,
		Modules:    registry,
		Shutdown:   control.ShutdownFunc(cancel),
	})
	if err := controlServer.Start(); err != nil {
		stopObservability(obsServer)
		return fmt.Errorf("failed to start control server: %w", err)
	}

	slog.Info("control server started", "socket", controlServer.Socket())

	// Module discovery runs in the background; the host is queryable from the
	// moment the control socket exists, reporting zero modules until then.
	go func() {
		if err := registry.Initialize(ctx); err != nil {
			slog.Error("module registry initialization failed", "error", err)
			cancel()
			return
		}
		registryReady.Store(true)
		count := registry.Count()
		if metrics != nil {
			metrics.ModulesLoaded.Set(float64(count))
		}
		slog.Info("module registry initialized", "modules", count)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Host process started")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("shutdown requested, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop the active session first so no module process outlives the host.
	if err := manager.Deactivate(shutdownCtx); err != nil {
		slog.Warn("error deactivating session during shutdown", "error", err)
	}

	if err := controlServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping control server", "error", err)
	}

	stopObservability(obsServer)

	slog.Info("shutdown complete")
	return nil
}

func stopObservability(s *observability.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

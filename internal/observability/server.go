// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package observability provides HTTP endpoints for metrics and health probes.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker returns whether the host is ready to serve requests.
type ReadinessChecker func() bool

// Metrics contains the custom Prometheus metrics for the Patchbay host.
type Metrics struct {
	// ModulesLoaded is the number of definitions in the registry catalog.
	ModulesLoaded prometheus.Gauge
	// SessionActive is 1 while a session is running.
	SessionActive prometheus.Gauge
	// ActivationsTotal counts Activate outcomes by result.
	ActivationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the host metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "patchbay_modules_loaded",
			Help: "Number of successfully loaded module definitions",
		}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "patchbay_session_active",
			Help: "Whether a session is currently running (0 or 1)",
		}),
		ActivationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchbay_session_activations_total",
				Help: "Total session activation attempts by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.ModulesLoaded)
	reg.MustRegister(m.SessionActive)
	reg.MustRegister(m.ActivationsTotal)

	return m
}

// Server provides HTTP endpoints for observability (metrics and probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
}

// NewServer creates an observability server on addr
// (e.g. "127.0.0.1:9600"; empty disables nothing here — callers decide).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Dedicated registry to avoid polluting the global one
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}
}

// Metrics returns the server's metric set for wiring into components.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start begins serving metrics and probe endpoints.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown observability server: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.isReady != nil && !s.isReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

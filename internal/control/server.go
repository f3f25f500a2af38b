// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package control provides the HTTP-over-Unix-socket channel between the
// Patchbay host and its controller.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
	"github.com/patchbay/patchbay/internal/session"
	"github.com/patchbay/patchbay/internal/xdg"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// DiagnosticsResponse is returned by the /diagnostics endpoint.
//
// degraded/unhealthy are reserved; an unreachable host is reported by the
// supervisor's own reachability check, not by this query.
type DiagnosticsResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
	LoadedModules  int    `json:"loaded_modules"`
	UptimeStart    string `json:"uptime_start"`
}

// ActivateRequest selects the preset to activate.
type ActivateRequest struct {
	PresetID string `json:"preset_id"`
}

// ActivateResponse carries the session state and aggregated validation
// results of one activation attempt.
type ActivateResponse struct {
	State   session.State             `json:"state"`
	Results []module.ValidationResult `json:"results,omitempty"`
}

// ShutdownResponse is returned by the /shutdown endpoint.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PresetStore is the preset persistence surface the server exposes.
type PresetStore interface {
	LoadAll() ([]preset.Preset, error)
	Save(p preset.Preset) error
	Delete(id string) error
}

// SessionController is the session surface the server exposes.
type SessionController interface {
	Activate(ctx context.Context, p preset.Preset) (*session.ActivationResult, error)
	Deactivate(ctx context.Context) error
	Snapshot() session.Snapshot
	ActiveCount() int
	Actions(ctx context.Context, moduleID string) ([]module.ActionState, error)
	Invoke(ctx context.Context, moduleID, key string, wait bool) error
}

// ModuleCatalog is the registry surface the server exposes.
type ModuleCatalog interface {
	All() ([]module.Definition, error)
	Count() int
}

// ShutdownFunc is called when shutdown is requested.
type ShutdownFunc func()

// Server serves the control channel over a Unix socket.
type Server struct {
	version      string
	startTime    time.Time
	socketPath   string
	listener     net.Listener
	httpServer   *http.Server
	presets      PresetStore
	sessions     SessionController
	modules      ModuleCatalog
	shutdownFunc ShutdownFunc
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	// Version is the host version string reported by diagnostics.
	Version string
	// SocketPath overrides the default socket location (mainly for tests).
	SocketPath string
	Presets    PresetStore
	Sessions   SessionController
	Modules    ModuleCatalog
	// Shutdown is invoked asynchronously on POST /shutdown.
	Shutdown ShutdownFunc
}

// NewServer creates a control server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		version:      cfg.Version,
		startTime:    time.Now().UTC(),
		socketPath:   cfg.SocketPath,
		presets:      cfg.Presets,
		sessions:     cfg.Sessions,
		modules:      cfg.Modules,
		shutdownFunc: cfg.Shutdown,
	}
}

// Socket returns the path the server listens on (resolved after Start).
func (s *Server) Socket() string {
	if s.socketPath == "" {
		return SocketPath()
	}
	return s.socketPath
}

// SocketPath returns the default path to the host's control socket.
func SocketPath() string {
	return filepath.Join(xdg.RuntimeDir(), "patchbay-host.sock")
}

// Start begins listening on the Unix socket.
func (s *Server) Start() error {
	if s.socketPath == "" {
		s.socketPath = SocketPath()
	}

	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	// Remove a stale socket from a previous run
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Socket is owner-only; the control channel has no authentication layer.
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /diagnostics", s.handleDiagnostics)
	mux.HandleFunc("GET /modules", s.handleModules)
	mux.HandleFunc("GET /presets", s.handlePresetList)
	mux.HandleFunc("PUT /presets", s.handlePresetSave)
	mux.HandleFunc("DELETE /presets/{id}", s.handlePresetDelete)
	mux.HandleFunc("GET /session", s.handleSessionShow)
	mux.HandleFunc("POST /session/activate", s.handleSessionActivate)
	mux.HandleFunc("POST /session/deactivate", s.handleSessionDeactivate)
	mux.HandleFunc("GET /session/modules/{id}/actions", s.handleActionList)
	mux.HandleFunc("POST /session/modules/{id}/actions/{key}", s.handleActionInvoke)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the control server and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown control server: %w", err)
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control listener", "error", err)
		}
	}

	if s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file",
				"path", s.socketPath,
				"error", err)
		}
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDiagnostics reports aggregate runtime state. It never fails outward:
// subsystems that are not ready degrade individual fields instead.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	resp := DiagnosticsResponse{
		Status:      "healthy",
		Version:     s.version,
		UptimeStart: s.startTime.Format(time.RFC3339),
	}
	if s.modules != nil {
		resp.LoadedModules = s.modules.Count()
	}
	if s.sessions != nil {
		resp.ActiveSessions = s.sessions.ActiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	defs, err := s.modules.All()
	if err != nil {
		if errors.Is(err, module.ErrNotInitialized) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handlePresetList(w http.ResponseWriter, _ *http.Request) {
	presets, err := s.presets.LoadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if presets == nil {
		presets = []preset.Preset{}
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handlePresetSave(w http.ResponseWriter, r *http.Request) {
	var p preset.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid preset body: %w", err))
		return
	}
	if err := s.presets.Save(p); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePresetDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.presets.Delete(id); err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionShow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleSessionActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid activate body: %w", err))
		return
	}

	target, err := s.findPreset(req.PresetID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	result, err := s.sessions.Activate(r.Context(), target)
	resp := ActivateResponse{State: s.sessions.Snapshot().State}
	if result != nil {
		resp.Results = result.Results
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, session.ErrValidationFailed):
		// Validation findings travel in the body; the status signals the block.
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleSessionDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Deactivate(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleActionList(w http.ResponseWriter, r *http.Request) {
	actions, err := s.sessions.Actions(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if actions == nil {
		actions = []module.ActionState{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleActionInvoke(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	err := s.sessions.Invoke(r.Context(), r.PathValue("id"), r.PathValue("key"), wait)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ShutdownResponse{Message: "shutdown initiated"})

	// Trigger shutdown asynchronously so the response can flush
	if s.shutdownFunc != nil {
		go s.shutdownFunc()
	}
}

// findPreset resolves an id (or unique name) to a stored preset. ID matches
// take precedence, so a preset named after another preset's id cannot shadow it.
func (s *Server) findPreset(idOrName string) (preset.Preset, error) {
	if strings.TrimSpace(idOrName) == "" {
		return preset.Preset{}, fmt.Errorf("preset_id is required")
	}
	presets, err := s.presets.LoadAll()
	if err != nil {
		return preset.Preset{}, err
	}
	for _, p := range presets {
		if p.ID == idOrName {
			return p, nil
		}
	}
	for _, p := range presets {
		if p.Name == idOrName {
			return p, nil
		}
	}
	return preset.Preset{}, fmt.Errorf("%w: %s", preset.ErrNotFound, idOrName)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode control response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, ErrorResponse{Error: err.Error()})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package main implements the httpping example module for Patchbay.
// It pings a configured HTTP endpoint whenever its "ping" action is invoked
// and reflects the last outcome in the action label.
//
// Build:
//
//	go build -o httpping ./modules/httpping
//
// Install by placing the binary next to its module.yaml under a subdirectory
// of the host's modules directory.
package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patchbay/patchbay/pkg/modsdk"
)

// pingTimeout bounds one probe round trip.
const pingTimeout = 10 * time.Second

// allowedHosts mirrors the allowed-hosts declaration in module.yaml.
var allowedHosts = []string{"localhost", "127.0.0.1", "*.example.com"}

// HTTPPing probes a configured endpoint on demand, and optionally on a timer.
type HTTPPing struct {
	actions  *modsdk.ActionRegistry
	ping     *modsdk.Action
	client   *modsdk.HTTPClient
	endpoint string
	interval time.Duration
	done     chan struct{}
}

// Configure binds the settings and builds the outbound HTTP client.
func (m *HTTPPing) Configure(settings map[string]string) error {
	endpoint, ok := settings["endpoint"]
	if !ok || endpoint == "" {
		return fmt.Errorf("setting %q is required", "endpoint")
	}
	m.endpoint = endpoint

	if raw := settings["interval-seconds"]; raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("setting %q: %w", "interval-seconds", err)
		}
		m.interval = time.Duration(seconds * float64(time.Second))
	}

	client, err := modsdk.NewHTTPClient("httpping", allowedHosts,
		modsdk.WithTimeout(pingTimeout),
	)
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}
	m.client = client
	return nil
}

// Start enables the ping action and begins periodic pings when configured.
func (m *HTTPPing) Start() error {
	m.ping.SetEnabled(true)

	if m.interval > 0 {
		m.done = make(chan struct{})
		go m.pingLoop(m.done)
	}
	return nil
}

// Stop disables the ping action and halts the periodic loop.
func (m *HTTPPing) Stop() error {
	m.ping.SetEnabled(false)
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	return nil
}

// pingLoop probes the endpoint until done closes.
func (m *HTTPPing) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.doPing()
		case <-done:
			return
		}
	}
}

// Actions reports the current action states.
func (m *HTTPPing) Actions() ([]modsdk.ActionState, error) {
	return m.actions.States(), nil
}

// Invoke dispatches an action invocation from the host.
func (m *HTTPPing) Invoke(key string, wait bool) error {
	return m.actions.Invoke(key, wait)
}

// doPing performs one probe and updates the action label with the outcome.
func (m *HTTPPing) doPing() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	start := time.Now()
	_, err := m.client.Get(ctx, m.endpoint)
	if err != nil {
		m.ping.SetLabel(fmt.Sprintf("Ping (failed: %v)", err))
		return err
	}
	m.ping.SetLabel(fmt.Sprintf("Ping (%s in %s)", m.endpoint, time.Since(start).Round(time.Millisecond)))
	return nil
}

func main() {
	m := &HTTPPing{actions: modsdk.NewActionRegistry()}
	m.ping = m.actions.Register("ping", "Ping")
	m.ping.SetEnabled(false)
	m.ping.OnInvoke(m.doPing)

	modsdk.Serve(&modsdk.ServeConfig{Module: m})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
	"github.com/patchbay/patchbay/internal/session"
)

// defaultRequestTimeout bounds individual control round trips.
const defaultRequestTimeout = 5 * time.Second

// Client talks to a host's control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for the socket at socketPath.
// An empty path uses the default host socket location.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = SocketPath()
	}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: defaultRequestTimeout,
		},
	}
}

// TargetSocket returns the socket path this client dials.
func (c *Client) TargetSocket() string { return c.socketPath }

// IsReachable attempts a lightweight health round trip within timeout.
// Unreachability is a normal, reportable outcome; IsReachable never errors.
func (c *Client) IsReachable(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var health HealthResponse
	err := c.get(ctx, "/health", &health)
	return err == nil && health.Status == "healthy"
}

// Diagnostics queries the host's diagnostics surface.
func (c *Client) Diagnostics(ctx context.Context) (DiagnosticsResponse, error) {
	var resp DiagnosticsResponse
	err := c.get(ctx, "/diagnostics", &resp)
	return resp, err
}

// Modules lists the host's loaded module definitions.
func (c *Client) Modules(ctx context.Context) ([]module.Definition, error) {
	var defs []module.Definition
	err := c.get(ctx, "/modules", &defs)
	return defs, err
}

// Presets lists the stored presets.
func (c *Client) Presets(ctx context.Context) ([]preset.Preset, error) {
	var presets []preset.Preset
	err := c.get(ctx, "/presets", &presets)
	return presets, err
}

// SavePreset upserts a preset.
func (c *Client) SavePreset(ctx context.Context, p preset.Preset) error {
	return c.do(ctx, http.MethodPut, "/presets", p, nil)
}

// DeletePreset removes a preset by id.
func (c *Client) DeletePreset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/presets/"+id, nil, nil)
}

// Session returns the current session snapshot.
func (c *Client) Session(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.get(ctx, "/session", &snap)
	return snap, err
}

// Activate asks the host to activate the preset with the given id or name.
// The response carries the aggregated validation results either way; a
// validation block surfaces as an error wrapping session.ErrValidationFailed.
func (c *Client) Activate(ctx context.Context, presetID string) (ActivateResponse, error) {
	var resp ActivateResponse
	err := c.do(ctx, http.MethodPost, "/session/activate", ActivateRequest{PresetID: presetID}, &resp)
	return resp, err
}

// Actions lists the live action states of a running module instance.
func (c *Client) Actions(ctx context.Context, moduleID string) ([]module.ActionState, error) {
	var actions []module.ActionState
	err := c.get(ctx, "/session/modules/"+moduleID+"/actions", &actions)
	return actions, err
}

// Invoke triggers an action on a running module instance. With wait set, the
// call blocks until the module's handler completes.
func (c *Client) Invoke(ctx context.Context, moduleID, key string, wait bool) error {
	path := "/session/modules/" + moduleID + "/actions/" + key
	if wait {
		path += "?wait=true"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Deactivate asks the host to stop the active session.
func (c *Client) Deactivate(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/session/deactivate", nil, nil)
}

// Shutdown requests a graceful host shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/shutdown", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do issues one control request. The host is addressed as "patchbay" in the
// URL only to satisfy net/http; the transport always dials the Unix socket.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://patchbay"+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code("HOST_UNREACHABLE").
			With("socket", c.socketPath).
			Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnprocessableEntity && out != nil {
		// Validation blocks carry their findings in the response body.
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, session.ErrValidationFailed)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return oops.Code("CONTROL_REQUEST_FAILED").
				With("status", resp.StatusCode).
				Errorf("%s %s: %s", method, path, errResp.Error)
		}
		return oops.Code("CONTROL_REQUEST_FAILED").
			With("status", resp.StatusCode).
			Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

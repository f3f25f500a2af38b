// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package modsdk_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchbay/patchbay/pkg/modsdk"
)

func TestNewHTTPClient_InvalidPatterns(t *testing.T) {
	_, err := modsdk.NewHTTPClient("m", []string{""})
	assert.Error(t, err)

	_, err = modsdk.NewHTTPClient("m", []string{"[invalid"})
	assert.Error(t, err)
}

func TestHTTPClient_AllowedHostsEnforced(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		wantOK  bool
	}{
		{name: "exact match", allowed: []string{"api.example.com"}, host: "api.example.com", wantOK: true},
		{name: "exact mismatch", allowed: []string{"api.example.com"}, host: "evil.example.com", wantOK: false},
		{name: "single-level wildcard", allowed: []string{"*.example.com"}, host: "api.example.com", wantOK: true},
		{name: "wildcard does not cross labels", allowed: []string{"*.example.com"}, host: "a.b.example.com", wantOK: false},
		{name: "super wildcard", allowed: []string{"**"}, host: "anything.anywhere.io", wantOK: true},
		{name: "no declaration no access", allowed: nil, host: "example.com", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := modsdk.NewHTTPClient("m", tt.allowed)
			require.NoError(t, err)

			// The transport is never reached when the host is blocked, so a
			// URL that does not resolve is fine for the blocked cases.
			_, err = c.Get(context.Background(), "http://"+tt.host+":0/")
			if tt.wantOK {
				// Allowed: the request passes the host check and fails later
				// at the transport, never with ErrHostNotAllowed.
				assert.NotErrorIs(t, err, modsdk.ErrHostNotAllowed)
			} else {
				assert.ErrorIs(t, err, modsdk.ErrHostNotAllowed)
			}
		})
	}
}

func TestHTTPClient_RequestsAndHeaders(t *testing.T) {
	var (
		gotMethod string
		gotBody   string
		gotHeader string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Module")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c, err := modsdk.NewHTTPClient("m", []string{"127.0.0.1"},
		modsdk.WithDefaultHeader("X-Module", "httpping"))
	require.NoError(t, err)

	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "pong", body)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "httpping", gotHeader)

	_, err = c.Post(context.Background(), srv.URL, `{"k":"v"}`)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"k":"v"}`, gotBody)

	_, err = c.Put(context.Background(), srv.URL, "payload")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := modsdk.NewHTTPClient("m", []string{"127.0.0.1"})
	require.NoError(t, err)

	body, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	// The body still comes back for diagnostics
	assert.Contains(t, body, "nope")
}

func TestHTTPClientFactory_Named(t *testing.T) {
	f := modsdk.NewHTTPClientFactory([]string{"api.example.com"})

	a, err := f.Named("primary")
	require.NoError(t, err)
	b, err := f.Named("primary")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := f.Named("secondary")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, "secondary", other.Name())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package goplugin_test

import (
	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/patchbay/patchbay/internal/module/goplugin"
	"github.com/patchbay/patchbay/pkg/modsdk"
)

// fakeClientFactory hands out fakeClients wrapping a canned module.
type fakeClientFactory struct {
	module     modsdk.Module
	clientErr  error
	lastClient *fakeClient
}

func (f *fakeClientFactory) NewClient(execPath string) goplugin.PluginClient {
	f.lastClient = &fakeClient{
		execPath:  execPath,
		module:    f.module,
		clientErr: f.clientErr,
	}
	return f.lastClient
}

// fakeClient implements goplugin.PluginClient without spawning a process.
type fakeClient struct {
	execPath  string
	module    modsdk.Module
	clientErr error
	killed    bool
}

func (c *fakeClient) Client() (hashiplug.ClientProtocol, error) {
	if c.clientErr != nil {
		return nil, c.clientErr
	}
	return &fakeProtocol{module: c.module}, nil
}

func (c *fakeClient) Kill() { c.killed = true }

// fakeProtocol dispenses the canned module.
type fakeProtocol struct {
	module modsdk.Module
}

func (p *fakeProtocol) Close() error { return nil }
func (p *fakeProtocol) Ping() error  { return nil }

func (p *fakeProtocol) Dispense(string) (any, error) {
	return p.module, nil
}

// fakeModule records lifecycle calls.
type fakeModule struct {
	configured   map[string]string
	configureErr error
	started      bool
	startErr     error
	stopped      bool
	stopCalls    int
	actions      []modsdk.ActionState
	actionsBlock chan struct{} // when set, Actions hangs until it is closed
	invoked      []string
}

func (m *fakeModule) Configure(settings map[string]string) error {
	if m.configureErr != nil {
		return m.configureErr
	}
	m.configured = settings
	return nil
}

func (m *fakeModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *fakeModule) Stop() error {
	m.stopped = true
	m.stopCalls++
	return nil
}

func (m *fakeModule) Actions() ([]modsdk.ActionState, error) {
	if m.actionsBlock != nil {
		<-m.actionsBlock
	}
	return m.actions, nil
}

func (m *fakeModule) Invoke(key string, _ bool) error {
	m.invoked = append(m.invoked, key)
	return nil
}

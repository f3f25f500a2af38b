// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package session_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
	"github.com/patchbay/patchbay/internal/session"
)

func pingDef() module.Definition {
	return module.Definition{
		ID: "httpping",
		Settings: []module.SettingDescriptor{
			{Key: "endpoint", Type: module.SettingText, Required: true},
			{Key: "interval-seconds", Type: module.SettingNumber, Default: "0"},
		},
		Actions: []string{"ping"},
	}
}

func clockDef() module.Definition {
	return module.Definition{ID: "clock"}
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		catalog *fakeCatalog
		mgr     *session.Manager
		states  []session.State
	)

	BeforeEach(func() {
		ctx = context.Background()
		catalog = newFakeCatalog()
		states = nil
		mgr = session.NewManager(catalog,
			session.WithStateListener(func(s session.State) {
				states = append(states, s)
			}),
		)
	})

	validPreset := func() preset.Preset {
		return preset.Preset{
			ID:   preset.NewID(),
			Name: "morning",
			Modules: []preset.ConfiguredModule{
				{ModuleID: "httpping", Enabled: true, Settings: map[string]string{"endpoint": "http://localhost/"}},
				{ModuleID: "clock", Enabled: true},
			},
		}
	}

	Describe("Activate", func() {
		It("starts every enabled module and reaches Running", func() {
			ping := catalog.add(pingDef())
			clock := catalog.add(clockDef())

			result, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HasErrors()).To(BeFalse())

			Expect(ping.running()).To(Equal(1))
			Expect(clock.running()).To(Equal(1))

			snap := mgr.Snapshot()
			Expect(snap.State).To(Equal(session.StateRunning))
			Expect(snap.PresetName).To(Equal("morning"))
			Expect(snap.Modules).To(Equal(2))
			Expect(mgr.ActiveCount()).To(Equal(1))

			Expect(states).To(Equal([]session.State{
				session.StateValidating,
				session.StateStarting,
				session.StateRunning,
			}))
		})

		It("fills declared defaults into the settings handed to factories", func() {
			ping := catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())
			Expect(ping.lastSeen).To(HaveKeyWithValue("interval-seconds", "0"))
		})

		It("skips disabled modules", func() {
			ping := catalog.add(pingDef())

			p := validPreset()
			p.Modules = []preset.ConfiguredModule{
				{ModuleID: "httpping", Enabled: false},
			}
			_, err := mgr.Activate(ctx, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(ping.newCalls).To(BeZero())
			Expect(mgr.Snapshot().Modules).To(BeZero())
		})

		It("blocks on a missing required setting and starts nothing", func() {
			ping := catalog.add(pingDef())
			clock := catalog.add(clockDef())

			p := validPreset()
			p.Modules[0].Settings = nil

			result, err := mgr.Activate(ctx, p)
			Expect(err).To(MatchError(session.ErrValidationFailed))
			Expect(result.HasErrors()).To(BeTrue())

			Expect(result.Errors()).To(HaveLen(1))
			Expect(result.Errors()[0].ModuleID).To(Equal("httpping"))
			Expect(result.Errors()[0].Key).To(Equal("endpoint"))

			Expect(ping.newCalls).To(BeZero())
			Expect(clock.newCalls).To(BeZero())
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
			Expect(states).To(ContainElement(session.StateFailed))
		})

		It("treats a module missing from the catalog as a validation error", func() {
			catalog.add(pingDef())
			// clock is referenced by the preset but never installed

			result, err := mgr.Activate(ctx, validPreset())
			Expect(err).To(MatchError(session.ErrValidationFailed))
			Expect(result.Errors()).To(HaveLen(1))
			Expect(result.Errors()[0].ModuleID).To(Equal("clock"))
		})

		It("surfaces warnings without blocking", func() {
			catalog.add(pingDef())
			catalog.add(clockDef())

			p := validPreset()
			p.Modules[0].Settings["colour"] = "blue"

			result, err := mgr.Activate(ctx, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Warnings()).To(HaveLen(1))
			Expect(mgr.Snapshot().State).To(Equal(session.StateRunning))
		})

		It("tears down already-started modules when a later one fails to start", func() {
			ping := catalog.add(pingDef())
			clock := catalog.add(clockDef())
			clock.newErr = errors.New("exec format error")

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(session.ErrValidationFailed))

			Expect(ping.newCalls).To(Equal(1))
			Expect(ping.running()).To(BeZero())
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
			Expect(mgr.ActiveCount()).To(BeZero())
		})

		It("fully deactivates a prior session before starting the next", func() {
			ping := catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			_, err = mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			// Two activations, but only one instance alive
			Expect(ping.newCalls).To(Equal(2))
			Expect(ping.running()).To(Equal(1))
			Expect(mgr.ActiveCount()).To(Equal(1))
		})
	})

	Describe("Deactivate", func() {
		It("is a no-op with no active session", func() {
			Expect(mgr.Deactivate(ctx)).To(Succeed())
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
		})

		It("stops modules in reverse start order", func() {
			var order []string
			ping := catalog.add(pingDef())
			ping.stopOrder = &order
			clock := catalog.add(clockDef())
			clock.stopOrder = &order

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Deactivate(ctx)).To(Succeed())
			Expect(order).To(Equal([]string{"clock", "httpping"}))
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
		})

		It("reaches Idle even when a module fails to stop", func() {
			ping := catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())
			ping.created[0].stopErr = errors.New("stuck")

			Expect(mgr.Deactivate(ctx)).To(Succeed())
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
			Expect(mgr.ActiveCount()).To(BeZero())
		})
	})

	Describe("Actions and Invoke", func() {
		It("returns ErrNoActiveSession when idle", func() {
			_, err := mgr.Actions(ctx, "httpping")
			Expect(err).To(MatchError(session.ErrNoActiveSession))

			err = mgr.Invoke(ctx, "httpping", "ping", true)
			Expect(err).To(MatchError(session.ErrNoActiveSession))
		})

		It("routes to the running instance", func() {
			ping := catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			ping.created[0].actions = []module.ActionState{{Key: "ping", Label: "Ping", Enabled: true}}

			actions, err := mgr.Actions(ctx, "httpping")
			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(1))

			Expect(mgr.Invoke(ctx, "httpping", "ping", true)).To(Succeed())
			Expect(ping.created[0].invoked).To(Equal([]string{"ping"}))
		})

		It("answers Deactivate while an Actions query hangs on its module", func() {
			ping := catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			entered := make(chan struct{})
			block := make(chan struct{})
			defer close(block)
			ping.created[0].actionsEntered = entered
			ping.created[0].actionsBlock = block

			go func() {
				defer GinkgoRecover()
				_, _ = mgr.Actions(ctx, "httpping")
			}()
			Eventually(entered).Should(BeClosed())

			// The hung query must not wedge the manager lock.
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				Expect(mgr.Deactivate(ctx)).To(Succeed())
			}()
			Eventually(done).Should(BeClosed())
			Expect(mgr.Snapshot().State).To(Equal(session.StateIdle))
		})

		It("rejects modules outside the active session", func() {
			catalog.add(pingDef())
			catalog.add(clockDef())

			_, err := mgr.Activate(ctx, validPreset())
			Expect(err).NotTo(HaveOccurred())

			_, err = mgr.Actions(ctx, "not-there")
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(session.ErrNoActiveSession))
		})
	})
})

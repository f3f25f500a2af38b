// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

//go:build integration

package host_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/preset"
	"github.com/patchbay/patchbay/internal/session"
)

var _ = Describe("Session flow over the control channel", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		env.loader.reset()
		Expect(env.client.Deactivate(ctx)).To(Succeed())
	})

	Describe("Diagnostics", func() {
		It("reports the loaded module catalog", func() {
			diag, err := env.client.Diagnostics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(diag.Status).To(Equal("healthy"))
			Expect(diag.LoadedModules).To(Equal(2))
			Expect(diag.ActiveSessions).To(Equal(0))
		})
	})

	Describe("Preset CRUD", func() {
		It("round-trips a preset through save, list, and delete", func() {
			p := preset.Preset{
				ID:   preset.NewID(),
				Name: "crud-check",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "recorder", Enabled: true},
				},
			}
			Expect(env.client.SavePreset(ctx, p)).To(Succeed())

			stored, err := env.client.Presets(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(ContainElement(p))

			Expect(env.client.DeletePreset(ctx, p.ID)).To(Succeed())

			stored, err = env.client.Presets(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(ContainElement(p))
		})
	})

	Describe("Activation", func() {
		It("blocks on a missing required setting and reports the finding", func() {
			p := preset.Preset{
				ID:   preset.NewID(),
				Name: "incomplete",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "pinger", Enabled: true},
				},
			}
			Expect(env.client.SavePreset(ctx, p)).To(Succeed())
			defer func() { _ = env.client.DeletePreset(ctx, p.ID) }()

			resp, err := env.client.Activate(ctx, p.ID)
			Expect(err).To(MatchError(session.ErrValidationFailed))
			Expect(resp.Results).NotTo(BeEmpty())
			Expect(resp.Results[0].ModuleID).To(Equal("pinger"))
			Expect(resp.Results[0].Key).To(Equal("endpoint"))
			Expect(resp.Results[0].Level).To(Equal(module.LevelError))

			// Nothing started
			Expect(env.loader.instancesOf("pinger")).To(BeEmpty())
			snap, err := env.client.Session(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.State).To(Equal(session.StateIdle))
		})

		It("runs a valid preset end to end, by name, with defaults applied", func() {
			p := preset.Preset{
				ID:   preset.NewID(),
				Name: "morning",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "pinger", Enabled: true, Settings: map[string]string{"endpoint": "http://localhost:8080"}},
					{ModuleID: "recorder", Enabled: true},
				},
			}
			Expect(env.client.SavePreset(ctx, p)).To(Succeed())
			defer func() { _ = env.client.DeletePreset(ctx, p.ID) }()

			resp, err := env.client.Activate(ctx, "morning")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.State).To(Equal(session.StateRunning))

			snap, err := env.client.Session(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.State).To(Equal(session.StateRunning))
			Expect(snap.PresetName).To(Equal("morning"))
			Expect(snap.Modules).To(Equal(2))

			// The recorder got its declared default
			recorders := env.loader.instancesOf("recorder")
			Expect(recorders).To(HaveLen(1))
			Expect(recorders[0].settings).To(HaveKeyWithValue("rate", "10"))

			diag, err := env.client.Diagnostics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(diag.ActiveSessions).To(Equal(1))
		})

		It("skips disabled modules", func() {
			p := preset.Preset{
				ID:   preset.NewID(),
				Name: "partial",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "pinger", Enabled: false},
					{ModuleID: "recorder", Enabled: true},
				},
			}
			Expect(env.client.SavePreset(ctx, p)).To(Succeed())
			defer func() { _ = env.client.DeletePreset(ctx, p.ID) }()

			_, err := env.client.Activate(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.loader.instancesOf("pinger")).To(BeEmpty())
			Expect(env.loader.instancesOf("recorder")).To(HaveLen(1))
		})
	})

	Describe("Actions", func() {
		var p preset.Preset

		BeforeEach(func() {
			p = preset.Preset{
				ID:   preset.NewID(),
				Name: "actions-flow",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "pinger", Enabled: true, Settings: map[string]string{"endpoint": "http://localhost:8080"}},
				},
			}
			Expect(env.client.SavePreset(ctx, p)).To(Succeed())
			_, err := env.client.Activate(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = env.client.DeletePreset(ctx, p.ID)
		})

		It("lists and invokes a running module's actions", func() {
			actions, err := env.client.Actions(ctx, "pinger")
			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(1))
			Expect(actions[0].Key).To(Equal("ping"))

			Expect(env.client.Invoke(ctx, "pinger", "ping", true)).To(Succeed())

			instances := env.loader.instancesOf("pinger")
			Expect(instances).To(HaveLen(1))
			Expect(instances[0].invocations()).To(Equal([]string{"ping"}))
		})

		It("rejects action calls once the session is deactivated", func() {
			Expect(env.client.Deactivate(ctx)).To(Succeed())

			_, err := env.client.Actions(ctx, "pinger")
			Expect(err).To(HaveOccurred())

			instances := env.loader.instancesOf("pinger")
			Expect(instances).To(HaveLen(1))
			Expect(instances[0].isStopped()).To(BeTrue())
		})
	})

	Describe("Activation over a running session", func() {
		It("stops the old session's instances before starting the new ones", func() {
			first := preset.Preset{
				ID:   preset.NewID(),
				Name: "first",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "recorder", Enabled: true},
				},
			}
			second := preset.Preset{
				ID:   preset.NewID(),
				Name: "second",
				Modules: []preset.ConfiguredModule{
					{ModuleID: "pinger", Enabled: true, Settings: map[string]string{"endpoint": "http://localhost:8080"}},
				},
			}
			Expect(env.client.SavePreset(ctx, first)).To(Succeed())
			Expect(env.client.SavePreset(ctx, second)).To(Succeed())
			defer func() {
				_ = env.client.DeletePreset(ctx, first.ID)
				_ = env.client.DeletePreset(ctx, second.ID)
			}()

			_, err := env.client.Activate(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = env.client.Activate(ctx, second.ID)
			Expect(err).NotTo(HaveOccurred())

			recorders := env.loader.instancesOf("recorder")
			Expect(recorders).To(HaveLen(1))
			Expect(recorders[0].isStopped()).To(BeTrue())

			snap, err := env.client.Session(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.PresetName).To(Equal("second"))
		})
	})
})

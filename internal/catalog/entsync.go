package catalog

import (
	"log/slog"
)

// EntitlementSyncer refreshes the shared entitlement map from the
// declarative entitlement file. Read or parse failures abort the pass
// without touching state: stale entitlements are safer than an empty
// map, which would revoke everyone's access.
type EntitlementSyncer struct {
	state      *State
	configPath string
}

// NewEntitlementSyncer constructs an EntitlementSyncer reading from
// the given TOML file.
func NewEntitlementSyncer(state *State, configPath string) *EntitlementSyncer {
	return &EntitlementSyncer{state: state, configPath: configPath}
}

// Run performs one refresh pass.
func (s *EntitlementSyncer) Run() {
	slog.Debug("reloading customer entitlements")

	entitlements, err := LoadEntitlements(s.configPath)
	if err != nil {
		slog.Error("entitlement refresh failed", "error", err)
		return
	}

	s.state.ReplaceEntitlements(entitlements)
	slog.Info("entitlements refreshed", "customers", len(entitlements))
}

// Loop runs the wait/refresh cycle until the trigger is closed.
func (s *EntitlementSyncer) Loop(trigger *Trigger) {
	for {
		if err := trigger.Wait(); err != nil {
			slog.Info("entitlement synchronizer stopping")
			return
		}
		s.Run()
	}
}

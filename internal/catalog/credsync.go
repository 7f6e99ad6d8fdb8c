package catalog

import (
	"context"
	"log/slog"

	"github.com/pkggate/pkggate/internal/vault"
)

// CredentialSyncer refreshes the shared credential map from the secret
// store. A pass is best-effort per entry: an entry whose fetch fails
// is logged and skipped, and is absent from the replacement map even
// if a previous pass knew it. Only a failure of the listing step
// itself aborts the pass and preserves the previous map.
type CredentialSyncer struct {
	state *State
	store *vault.Client
}

// NewCredentialSyncer constructs a CredentialSyncer reading from the
// given secret store client.
func NewCredentialSyncer(state *State, store *vault.Client) *CredentialSyncer {
	return &CredentialSyncer{state: state, store: store}
}

// Run performs one refresh pass.
func (s *CredentialSyncer) Run(ctx context.Context) {
	slog.Debug("reloading customer credentials")

	entries, err := s.store.List(ctx)
	if err != nil {
		// Never publish an empty map because the list call failed.
		slog.Error("credential refresh failed", "error", err)
		return
	}

	credentials := make(map[string]string, len(entries))
	skipped := 0
	for _, entry := range entries {
		credential, err := s.store.Get(ctx, entry)
		if err != nil {
			slog.Error("skipping credential entry", "entry", entry, "error", err)
			skipped++
			continue
		}
		credentials[credential.Username] = credential.Password
	}

	s.state.ReplaceCredentials(credentials)
	slog.Info("credentials refreshed", "entries", len(credentials), "skipped", skipped)
}

// Loop runs the wait/refresh cycle until the trigger is closed.
func (s *CredentialSyncer) Loop(ctx context.Context, trigger *Trigger) {
	for {
		if err := trigger.Wait(); err != nil {
			slog.Info("credential synchronizer stopping")
			return
		}
		s.Run(ctx)
	}
}

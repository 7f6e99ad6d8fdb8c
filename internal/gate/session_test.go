package gate

import (
	"testing"
	"time"
)

func TestSessionIssueAndValidate(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(time.Hour)
	token := store.Issue()

	if !store.Validate(token) {
		t.Error("freshly issued session should validate")
	}
	if store.Validate("unknown") {
		t.Error("unknown token must not validate")
	}
	if other := store.Issue(); other == token {
		t.Error("tokens must be unique")
	}
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(time.Hour)
	clock := time.Now()
	store.now = func() time.Time { return clock }

	token := store.Issue()
	if !store.Validate(token) {
		t.Fatal("session should be live before expiry")
	}

	clock = clock.Add(time.Hour + time.Second)
	if store.Validate(token) {
		t.Error("session should expire after its TTL")
	}
	// Expired tokens are dropped, not just rejected.
	if len(store.sessions) != 0 {
		t.Error("expired session should be removed from the store")
	}
}

func TestSessionRevoke(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(time.Hour)
	token := store.Issue()
	store.Revoke(token)
	if store.Validate(token) {
		t.Error("revoked session must not validate")
	}
	store.Revoke("unknown") // no-op
}

func TestSessionPruneOnIssue(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(time.Hour)
	clock := time.Now()
	store.now = func() time.Time { return clock }

	stale := store.Issue()
	clock = clock.Add(2 * time.Hour)
	fresh := store.Issue()

	if _, ok := store.sessions[stale]; ok {
		t.Error("issuing should prune expired sessions")
	}
	if !store.Validate(fresh) {
		t.Error("fresh session should survive pruning")
	}
}

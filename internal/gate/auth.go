// Package gate implements the request-facing side of the gateway: it
// resolves inbound credentials to a principal, filters the catalog to
// what that principal may see, and streams authorized downloads.
package gate

import (
	"crypto/subtle"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/pkggate/pkggate/internal/catalog"
)

// ErrUnauthorized is returned when a request carries no valid
// credentials. The HTTP layer maps it to 401.
var ErrUnauthorized = errors.New("unauthorized")

// PrincipalKind discriminates the two roles a request can resolve to.
type PrincipalKind int

const (
	// PrincipalCustomer sees only its entitled packages.
	PrincipalCustomer PrincipalKind = iota
	// PrincipalDeveloper sees the whole catalog.
	PrincipalDeveloper
)

// Principal is the resolved identity of an inbound request.
type Principal struct {
	Kind PrincipalKind
	// Name is the customer name; empty for developers.
	Name string
}

// Authorizer resolves requests to principals against the shared state
// and the session store.
type Authorizer struct {
	state    *catalog.State
	sessions *SessionStore
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(state *catalog.State, sessions *SessionStore) *Authorizer {
	return &Authorizer{state: state, sessions: sessions}
}

// Authenticate resolves the request to a Principal. Inline basic-auth
// credentials are checked first against the credential map; failing
// that, a valid session cookie yields a developer. Anything else is
// ErrUnauthorized.
func (a *Authorizer) Authenticate(r *http.Request) (Principal, error) {
	if user, pass, ok := r.BasicAuth(); ok {
		if stored, ok := a.state.Credential(user); ok &&
			subtle.ConstantTimeCompare([]byte(stored), []byte(pass)) == 1 {
			return Principal{Kind: PrincipalCustomer, Name: user}, nil
		}
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if a.sessions.Validate(cookie.Value) {
			return Principal{Kind: PrincipalDeveloper}, nil
		}
	}

	return Principal{}, ErrUnauthorized
}

// Visible returns the sorted package names the principal may see:
// the whole catalog for developers, the intersection of catalog and
// entitlements for customers. A customer with no entitlement entry
// sees nothing.
func (a *Authorizer) Visible(p Principal) []string {
	names := a.state.PackageNames()
	if p.Kind == PrincipalDeveloper {
		return names
	}

	visible := names[:0]
	for _, name := range names {
		if a.state.Entitled(p.Name, name) {
			visible = append(visible, name)
		}
	}
	return visible
}

// CanSee reports whether the principal may see the named package,
// ignoring whether the package currently exists in the catalog.
func (a *Authorizer) CanSee(p Principal, pkg string) bool {
	if p.Kind == PrincipalDeveloper {
		return true
	}
	return a.state.Entitled(p.Name, pkg)
}

package gate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/pkggate/pkggate/internal/catalog"
)

// ErrNotFound is returned for unknown packages and files, and equally
// for packages the principal may not see. The two cases are
// deliberately indistinguishable so responses do not leak catalog
// contents to unauthorized principals.
var ErrNotFound = errors.New("not found")

// Proxy serves authorized catalog listings and file downloads.
type Proxy struct {
	state  *catalog.State
	auth   *Authorizer
	client *http.Client
}

// NewProxy constructs a Proxy. client is used for remote file
// fetches.
func NewProxy(state *catalog.State, auth *Authorizer, client *http.Client) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{state: state, auth: auth, client: client}
}

// ListPackages returns the sorted package names visible to the
// principal.
func (p *Proxy) ListPackages(principal Principal) []string {
	return p.auth.Visible(principal)
}

// ListFiles returns the files of one visible package.
func (p *Proxy) ListFiles(principal Principal, pkg string) ([]catalog.File, error) {
	if !p.auth.CanSee(principal, pkg) {
		return nil, ErrNotFound
	}
	entry, ok := p.state.Lookup(pkg)
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Files, nil
}

// Open returns a stream of the named file's bytes. Lookup failures of
// any kind yield ErrNotFound; failures fetching an existing file's
// bytes are distribution failures and returned as-is.
func (p *Proxy) Open(ctx context.Context, principal Principal, pkg, name string) (io.ReadCloser, error) {
	if !p.auth.CanSee(principal, pkg) {
		return nil, ErrNotFound
	}
	entry, ok := p.state.Lookup(pkg)
	if !ok {
		return nil, ErrNotFound
	}
	file := entry.FindFile(name)
	if file == nil {
		return nil, ErrNotFound
	}

	switch file.Kind {
	case catalog.LocalFile:
		f, err := os.Open(file.Path)
		if err != nil {
			return nil, errors.Wrap(err, "open local file")
		}
		slog.Debug("serving local file", "package", pkg, "file", name)
		return f, nil

	case catalog.RemoteFile:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL.String(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "build remote request")
		}
		switch file.Auth {
		case catalog.IndexAuthNone:
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "fetch remote file")
		}
		if resp.StatusCode != http.StatusOK {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", "error", err)
			}
			return nil, errors.Newf("status %d fetching %s", resp.StatusCode, file.URL)
		}
		slog.Debug("serving remote file", "package", pkg, "file", name)
		return resp.Body, nil

	default:
		return nil, errors.Newf("unknown file kind %d", file.Kind)
	}
}

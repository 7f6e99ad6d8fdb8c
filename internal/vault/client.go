// Package vault implements the small slice of the HashiCorp Vault
// KV v2 HTTP API that the credential synchronizer consumes: listing
// the entries under a path and reading one entry.
package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

const listTries = 3

// Credential is one username/password pair stored as a secret entry.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client talks to one KV v2 mount path with a fixed bearer token.
type Client struct {
	base   *url.URL
	token  string
	mount  string
	path   string
	client *http.Client
}

// New constructs a Client. base is the Vault server address, mount the
// KV v2 mount name (usually "secret"), and secretPath the directory of
// credential entries under that mount.
func New(base *url.URL, token, mount, secretPath string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		base:   base,
		token:  token,
		mount:  mount,
		path:   secretPath,
		client: client,
	}
}

// envelope is Vault's generic response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

type listData struct {
	Keys []string `json:"keys"`
}

type secretData struct {
	Data Credential `json:"data"`
}

func (c *Client) endpoint(kind, entry string) *url.URL {
	p := path.Join("/v1", c.mount, kind, c.path, entry)
	return c.base.ResolveReference(&url.URL{Path: p})
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := errors.Newf("status %d for %s %s", resp.StatusCode, method, target)
		if resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "decode response data")
}

// List returns the names of all secret entries under the configured
// path. Transient failures are retried a bounded number of times; the
// caller treats a final failure as an aborted pass.
func (c *Client) List(ctx context.Context) ([]string, error) {
	target := c.endpoint("metadata", "")

	data, err := backoff.Retry(ctx, func() (*listData, error) {
		var data listData
		// Vault uses the non-standard LIST method for enumeration.
		if err := c.do(ctx, "LIST", target, &data); err != nil {
			return nil, err
		}
		return &data, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(listTries))
	if err != nil {
		return nil, errors.Wrap(err, "list secret entries")
	}
	return data.Keys, nil
}

// Get reads one secret entry and returns its credential pair.
func (c *Client) Get(ctx context.Context, entry string) (Credential, error) {
	var data secretData
	if err := c.do(ctx, http.MethodGet, c.endpoint("data", entry), &data); err != nil {
		return Credential{}, errors.Wrap(err, "read secret entry "+entry)
	}
	if data.Data.Username == "" {
		return Credential{}, errors.New("secret entry " + entry + " has no username")
	}
	return data.Data, nil
}

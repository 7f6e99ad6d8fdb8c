/*
Package pkggate is a gateway that serves private package indexes to
entitled customers.

pkggate keeps an in-memory catalog of packages synchronized from
upstream simple indexes and local folders, customer entitlements from a
declarative TOML file, and customer credentials from a Vault KV store,
and serves the result as an authenticated PEP 503 style index with
proxied downloads. Features include:
  - Coalescing refresh triggers so bursts of refresh requests collapse
    into one synchronization pass
  - Wholesale catalog replacement on every pass, never stale merges
  - Per-customer entitlement filtering with uniform 404 responses for
    invisible and nonexistent packages
  - Developer sessions that see the full catalog
  - Version-aware retention filters for index-backed packages

The main packages are:

	github.com/pkggate/pkggate/internal/catalog - catalog, entitlement, and credential synchronization
	github.com/pkggate/pkggate/internal/vault   - Vault KV v2 client for credential entries
	github.com/pkggate/pkggate/internal/gate    - authentication, authorization, and the HTTP surface
	github.com/pkggate/pkggate/cmd/pkggate      - command-line interface
*/
package pkggate

package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	config := NewConfig()

	if config.Listen != ":3030" {
		t.Error("unexpected default listen address:", config.Listen)
	}
	if config.MaxConns != 10 {
		t.Error("unexpected default max_conns:", config.MaxConns)
	}
	if config.Refresh.Catalog.Duration != 15*time.Second {
		t.Error("unexpected default catalog refresh interval:", config.Refresh.Catalog.Duration)
	}
	if config.Vault.Mount != "secret" || config.Vault.Path != "customers" {
		t.Error("unexpected vault defaults:", config.Vault.Mount, config.Vault.Path)
	}
	if config.Auth.SessionTTL.Duration != 12*time.Hour {
		t.Error("unexpected default session TTL:", config.Auth.SessionTTL.Duration)
	}
}

func TestConfigDecode(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "pkggate.toml", `
listen = ":8080"
package_config = "/etc/pkggate/packages.toml"
entitlement_config = "/etc/pkggate/customers.toml"
max_conns = 4
fetch_timeout = "30s"

[refresh]
catalog = "1m"
credentials = "20s"

[vault]
url = "http://127.0.0.1:8200"

[auth]
dev_token = "sekrit"
session_ttl = "1h"

[log]
level = "debug"
format = "json"
`)

	config := NewConfig()
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		t.Fatal(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		t.Fatal("unexpected undecoded keys:", undecoded)
	}
	if err := config.Check(); err != nil {
		t.Fatal(err)
	}

	if config.Listen != ":8080" {
		t.Error("listen not decoded:", config.Listen)
	}
	if config.Refresh.Catalog.Duration != time.Minute {
		t.Error("refresh.catalog not decoded:", config.Refresh.Catalog.Duration)
	}
	// Unset intervals keep their defaults.
	if config.Refresh.Entitlements.Duration != 15*time.Second {
		t.Error("refresh.entitlements default lost:", config.Refresh.Entitlements.Duration)
	}
	if config.Vault.URL.URL == nil || config.Vault.URL.Host != "127.0.0.1:8200" {
		t.Error("vault.url not decoded")
	}
	if config.Auth.DevToken != "sekrit" {
		t.Error("auth.dev_token not decoded")
	}
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()

	config := NewConfig()
	if err := config.Check(); err == nil {
		t.Error("Check should fail without package_config")
	}

	config.PackageConfig = "/etc/pkggate/packages.toml"
	if err := config.Check(); err == nil {
		t.Error("Check should fail without entitlement_config")
	}

	config.EntitlementFile = "/etc/pkggate/customers.toml"
	if err := config.Check(); err == nil {
		t.Error("Check should fail without vault url")
	}
}

func TestTomlURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input     string
		expectErr bool
		path      string
	}{
		{"http://example.com/simple", false, "/simple/"},
		{"https://example.com/simple/", false, "/simple/"},
		{"ftp://example.com/simple", true, ""},
		{"not a url://", true, ""},
	}

	for _, tt := range tests {
		var u tomlURL
		err := u.UnmarshalText([]byte(tt.input))
		if tt.expectErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.input, err)
			continue
		}
		if u.Path != tt.path {
			t.Errorf("%q: path %q, want %q", tt.input, u.Path, tt.path)
		}
	}
}

func TestTomlDuration(t *testing.T) {
	t.Parallel()

	var d tomlDuration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Error("unexpected duration:", d.Duration)
	}

	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("negative duration should be rejected")
	}
	if err := d.UnmarshalText([]byte("fast")); err == nil {
		t.Error("garbage duration should be rejected")
	}
}

func TestLoadPackageConfig(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "packages.toml", `
[indexes.main]
url = "http://pypi.internal/simple"

[packages.foo]
index = "main"

[packages.bar]
folder = "/srv/packages/bar"

[packages.baz]
index = "main"

[packages.baz.filters]
keep_versions = 2
exclude_patterns = ["*-dev-*"]
`)

	config, err := LoadPackageConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(config.Packages) != 3 {
		t.Fatal("expected 3 packages, got", len(config.Packages))
	}
	if config.Packages["foo"].Index != "main" {
		t.Error("foo should reference index main")
	}
	if config.Packages["bar"].Folder != "/srv/packages/bar" {
		t.Error("bar should reference a folder")
	}
	if config.Packages["baz"].Filters == nil || config.Packages["baz"].Filters.KeepVersions != 2 {
		t.Error("baz filters not decoded")
	}
}

func TestLoadPackageConfigRejectsBadEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			"neither source",
			"[packages.foo]\n",
		},
		{
			"both sources",
			`[indexes.main]
url = "http://pypi.internal/simple"
[packages.foo]
index = "main"
folder = "/srv/foo"
`,
		},
		{
			"unknown index",
			"[packages.foo]\nindex = \"nope\"\n",
		},
		{
			"unknown keys",
			"[package.foo]\nindex = \"main\"\n",
		},
		{
			"bad filter pattern",
			`[packages.foo]
folder = "/srv/foo"
[packages.foo.filters]
exclude_patterns = ["["]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "packages.toml", tt.content)
			if _, err := LoadPackageConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadEntitlements(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "customers.toml", `
[customers.acme]
packages = ["foo", "bar", "foo"]

[customers.initech]
packages = []
`)

	entitlements, err := LoadEntitlements(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(entitlements) != 2 {
		t.Fatal("expected 2 customers, got", len(entitlements))
	}
	acme := entitlements["acme"]
	if len(acme) != 2 {
		t.Error("duplicate package names should collapse into a set, got", acme)
	}
	if _, ok := acme["foo"]; !ok {
		t.Error("acme should include foo")
	}
	if len(entitlements["initech"]) != 0 {
		t.Error("initech should have an empty set")
	}
}

func TestLoadEntitlementsRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "customers.toml", `
[customer.acme]
packages = ["foo"]
`)
	if _, err := LoadEntitlements(path); err == nil {
		t.Error("typo section should be rejected")
	}

	if _, err := LoadEntitlements(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should be an error")
	}
}

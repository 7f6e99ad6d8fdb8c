package catalog

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

const (
	defaultMaxConns        = 10
	defaultRefreshInterval = 15 * time.Second
	defaultFetchTimeout    = 2 * time.Minute
	defaultSessionTTL      = 12 * time.Hour
	defaultListen          = ":3030"
)

type tomlURL struct {
	*url.URL
}

func (u *tomlURL) UnmarshalText(text []byte) error {
	parsedURL, err := url.Parse(string(text))
	if err != nil {
		return err
	}
	switch parsedURL.Scheme {
	case "http":
	case "https":
	default:
		return errors.New("unsupported scheme: " + parsedURL.Scheme)
	}

	// for URL.ResolveReference
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
		parsedURL.RawPath += "/"
	}

	u.URL = parsedURL
	return nil
}

type tomlDuration struct {
	time.Duration
}

func (d *tomlDuration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed <= 0 {
		return errors.New("duration must be positive: " + string(text))
	}
	d.Duration = parsed
	return nil
}

// RefreshConfig holds the tick interval for each synchronizer. Zero
// values fall back to the 15 second default.
type RefreshConfig struct {
	Catalog      tomlDuration `toml:"catalog,omitempty"`
	Entitlements tomlDuration `toml:"entitlements,omitempty"`
	Credentials  tomlDuration `toml:"credentials,omitempty"`
}

// VaultConfig points the credential synchronizer at a KV v2 secret
// store. The bearer token is not read from TOML; it comes from the
// VAULT_TOKEN environment variable.
type VaultConfig struct {
	URL   tomlURL `toml:"url"`
	Mount string  `toml:"mount"`
	Path  string  `toml:"path"`
}

// Check validates the vault configuration.
func (v *VaultConfig) Check() error {
	if v.URL.URL == nil {
		return errors.New("vault url is not set")
	}
	return nil
}

// AuthConfig configures developer session issuance. When DevToken is
// empty, the /auth/dev endpoint is disabled.
type AuthConfig struct {
	DevToken   string       `toml:"dev_token,omitempty"`
	SessionTTL tomlDuration `toml:"session_ttl,omitempty"`
}

// LogConfig represents slog configuration options.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply configures the global slog logger based on the configuration.
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Config is the server configuration read from TOML.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := catalog.NewConfig()
//	md, err := toml.DecodeFile("/path/to/pkggate.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	Listen          string        `toml:"listen"`
	PackageConfig   string        `toml:"package_config"`
	EntitlementFile string        `toml:"entitlement_config"`
	MaxConns        int           `toml:"max_conns"`
	FetchTimeout    tomlDuration  `toml:"fetch_timeout,omitempty"`
	Refresh         RefreshConfig `toml:"refresh"`
	Vault           VaultConfig   `toml:"vault"`
	Auth            AuthConfig    `toml:"auth"`
	Log             LogConfig     `toml:"log"`
	TLS             TLSConfig     `toml:"tls"`
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	c := &Config{
		Listen:   defaultListen,
		MaxConns: defaultMaxConns,
	}
	c.Vault.Mount = "secret"
	c.Vault.Path = "customers"
	c.FetchTimeout.Duration = defaultFetchTimeout
	c.Refresh.Catalog.Duration = defaultRefreshInterval
	c.Refresh.Entitlements.Duration = defaultRefreshInterval
	c.Refresh.Credentials.Duration = defaultRefreshInterval
	c.Auth.SessionTTL.Duration = defaultSessionTTL
	return c
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.PackageConfig == "" {
		return errors.New("package_config is not set")
	}
	if c.EntitlementFile == "" {
		return errors.New("entitlement_config is not set")
	}
	if err := c.Vault.Check(); err != nil {
		return err
	}
	return nil
}

// IndexConfig declares one named remote HTML index.
type IndexConfig struct {
	URL tomlURL `toml:"url"`
}

// PackageEntry declares one named package, sourced from either a named
// index or a local folder.
type PackageEntry struct {
	Index   string       `toml:"index,omitempty"`
	Folder  string       `toml:"folder,omitempty"`
	Filters *FileFilters `toml:"filters,omitempty"`
}

// Check validates the package entry.
func (p *PackageEntry) Check() error {
	switch {
	case p.Index == "" && p.Folder == "":
		return errors.New("neither index nor folder is set")
	case p.Index != "" && p.Folder != "":
		return errors.New("both index and folder are set")
	}
	if p.Filters != nil {
		if err := p.Filters.Check(); err != nil {
			return err
		}
	}
	return nil
}

// PackageConfig is the declarative package source document.
type PackageConfig struct {
	Indexes  map[string]*IndexConfig  `toml:"indexes"`
	Packages map[string]*PackageEntry `toml:"packages"`
}

// Check validates the package configuration, including that every
// package's index reference names a declared index.
func (pc *PackageConfig) Check() error {
	for name, entry := range pc.Packages {
		if err := entry.Check(); err != nil {
			return errors.Wrap(err, "package \""+name+"\"")
		}
		if entry.Index != "" {
			index, ok := pc.Indexes[entry.Index]
			if !ok {
				return errors.New("package \"" + name + "\": unknown index: " + entry.Index)
			}
			if index.URL.URL == nil {
				return errors.New("index \"" + entry.Index + "\": url is not set")
			}
		}
	}
	return nil
}

// LoadPackageConfig reads and validates a package configuration file.
// Unknown keys are rejected so that typos do not silently drop
// packages.
func LoadPackageConfig(path string) (*PackageConfig, error) {
	config := &PackageConfig{}
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, errors.Wrap(err, "decode "+path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("%s: unknown keys: %v", path, undecoded)
	}
	if err := config.Check(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return config, nil
}

// customerEntry is one customer section of the entitlement document.
type customerEntry struct {
	Packages []string `toml:"packages"`
}

// entitlementConfig is the declarative entitlement document.
type entitlementConfig struct {
	Customers map[string]*customerEntry `toml:"customers"`
}

// LoadEntitlements reads the entitlement file and converts each
// customer's package list into a set.
func LoadEntitlements(path string) (map[string]map[string]struct{}, error) {
	config := &entitlementConfig{}
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, errors.Wrap(err, "decode "+path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("%s: unknown keys: %v", path, undecoded)
	}

	entitlements := make(map[string]map[string]struct{}, len(config.Customers))
	for customer, entry := range config.Customers {
		set := make(map[string]struct{}, len(entry.Packages))
		for _, pkg := range entry.Packages {
			set[pkg] = struct{}{}
		}
		entitlements[customer] = set
	}
	return entitlements, nil
}

// FormatUndecoded builds a user-facing message for unknown TOML keys.
func FormatUndecoded(undecoded []toml.Key) string {
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	return fmt.Sprintf("configuration contains unknown keys: %v (section names are case-sensitive and must match exactly)", keys)
}

// Package main implements the pkggate gateway server and its operator
// commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pkggate/pkggate/internal/catalog"
	"github.com/pkggate/pkggate/internal/gate"
	"github.com/pkggate/pkggate/internal/vault"
)

const defaultConfigPath = "/etc/pkggate/pkggate.toml"

var (
	// Build information - can be set via build flags.
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pkggate",
	Short: "Access-controlled package index gateway",
	Long: `pkggate presents a unified, access-controlled simple index of software
packages drawn from remote HTML indexes and local folders, and serves
file downloads subject to per-customer entitlement.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Long: `Runs the gateway server: three background synchronizers keep
credentials, entitlements and the package catalog fresh while the HTTP
surface serves the simple index.

Usage:
  # Run with the default configuration file
  pkggate serve

  # Use a custom configuration file
  pkggate serve --config /path/to/pkggate.toml

  # Override the log level
  pkggate serve --log-level debug`,
	Run: runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run a single catalog pass and print the result",
	Long: `Resolves every configured package once, without starting the server,
and prints the resulting catalog. Useful for validating a package
configuration against its sources.`,
	Run: runRefresh,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration files",
	Long:  `Validate the server, package, and entitlement configuration files and report any issues.`,
	Run:   runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("pkggate %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")
}

// formatError returns a human-friendly error message, optionally with
// stack trace.
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err)
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// loadConfig decodes and applies the server configuration, rejecting
// unknown keys.
func loadConfig() (*catalog.Config, error) {
	config := catalog.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("configuration file not found: " + configPath)
		}
		return nil, errors.Wrap(err, "decode "+configPath)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(catalog.FormatUndecoded(undecoded))
	}

	if err := config.Log.Apply(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.Log.Level = logLevel
		if err := config.Log.Apply(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func runServe(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}
	if err := config.Check(); err != nil {
		slog.Error("invalid configuration", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}

	vaultToken := os.Getenv("VAULT_TOKEN")
	if vaultToken == "" {
		slog.Error("VAULT_TOKEN is not set")
		os.Exit(1)
	}

	client, err := catalog.NewOutboundClient(&config.TLS, config.FetchTimeout.Duration)
	if err != nil {
		slog.Error("failed to build outbound HTTP client", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	state := catalog.NewState()
	store := vault.New(config.Vault.URL.URL, vaultToken, config.Vault.Mount, config.Vault.Path, client)

	catalogSyncer := catalog.NewCatalogSyncer(state, config.PackageConfig, client, config.MaxConns)
	entitlementSyncer := catalog.NewEntitlementSyncer(state, config.EntitlementFile)
	credentialSyncer := catalog.NewCredentialSyncer(state, store)

	sessions := gate.NewSessionStore(config.Auth.SessionTTL.Duration)
	authorizer := gate.NewAuthorizer(state, sessions)
	proxy := gate.NewProxy(state, authorizer, client)
	server := gate.NewServer(authorizer, proxy, sessions, config.Auth.DevToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, server, catalogSyncer, entitlementSyncer, credentialSyncer); err != nil {
		slog.Error("server failed", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// run supervises the synchronizer loops, their timers, and the HTTP
// server until ctx is canceled or one of them fails.
func run(ctx context.Context, config *catalog.Config, server *gate.Server,
	catalogSyncer *catalog.CatalogSyncer, entitlementSyncer *catalog.EntitlementSyncer,
	credentialSyncer *catalog.CredentialSyncer) error {

	group, ctx := errgroup.WithContext(ctx)

	catalogTrigger := catalog.NewTrigger()
	entitlementTrigger := catalog.NewTrigger()
	credentialTrigger := catalog.NewTrigger()

	group.Go(func() error {
		catalogSyncer.Loop(ctx, catalogTrigger)
		return nil
	})
	group.Go(func() error {
		entitlementSyncer.Loop(entitlementTrigger)
		return nil
	})
	group.Go(func() error {
		credentialSyncer.Loop(ctx, credentialTrigger)
		return nil
	})

	// One timer per synchronizer. Closing the trigger on the way out
	// is what stops the matching loop.
	tick := func(trigger *catalog.Trigger, interval time.Duration) func() error {
		return func() error {
			defer trigger.Close()

			trigger.Signal()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					trigger.Signal()
				}
			}
		}
	}
	group.Go(tick(catalogTrigger, config.Refresh.Catalog.Duration))
	group.Go(tick(entitlementTrigger, config.Refresh.Entitlements.Duration))
	group.Go(tick(credentialTrigger, config.Refresh.Credentials.Duration))

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		slog.Info("listening", "addr", config.Listen)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func runRefresh(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}
	if config.PackageConfig == "" {
		slog.Error("package_config is not set", "path", configPath)
		os.Exit(1)
	}

	packageConfig, err := catalog.LoadPackageConfig(config.PackageConfig)
	if err != nil {
		slog.Error("failed to load package configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	client, err := catalog.NewOutboundClient(&config.TLS, config.FetchTimeout.Duration)
	if err != nil {
		slog.Error("failed to build outbound HTTP client", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	syncer := catalog.NewCatalogSyncer(catalog.NewState(), config.PackageConfig, client, config.MaxConns)

	bar := pb.StartNew(len(packageConfig.Packages))
	newCatalog, err := syncer.Refresh(context.Background(), func(string) {
		bar.Increment()
	})
	bar.Finish()
	if err != nil {
		slog.Error("catalog pass failed", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	names := make([]string, 0, len(newCatalog))
	totalFiles := 0
	for name, pkg := range newCatalog {
		names = append(names, name)
		totalFiles += len(pkg.Files)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("  %-40s %d files\n", name, len(newCatalog[name].Files))
	}
	fmt.Printf("Resolved %d of %d packages (%d files)\n",
		len(newCatalog), len(packageConfig.Packages), totalFiles)

	if len(newCatalog) < len(packageConfig.Packages) {
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}

	var validationErrors []error

	if err := config.Check(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "server config"))
	}

	if config.PackageConfig != "" {
		if _, err := catalog.LoadPackageConfig(config.PackageConfig); err != nil {
			validationErrors = append(validationErrors, errors.Wrap(err, "package config"))
		}
	}
	if config.EntitlementFile != "" {
		if _, err := catalog.LoadEntitlements(config.EntitlementFile); err != nil {
			validationErrors = append(validationErrors, errors.Wrap(err, "entitlement config"))
		}
	}

	if len(validationErrors) > 0 {
		slog.Error("the configuration is not valid")
		for _, err := range validationErrors {
			slog.Error(formatError(err, verboseErrors))
		}
		os.Exit(1)
	}

	slog.Info("the configuration passes validation checks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

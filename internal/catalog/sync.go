package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CatalogSyncer refreshes the shared package catalog from the
// declarative package configuration. Every pass builds a complete
// replacement catalog; packages whose source fails to resolve are
// absent from that pass, never carried over from the previous one.
type CatalogSyncer struct {
	state      *State
	configPath string
	resolver   *IndexResolver
	maxConns   int
}

// NewCatalogSyncer constructs a CatalogSyncer. maxConns bounds how
// many packages are resolved concurrently during one pass.
func NewCatalogSyncer(state *State, configPath string, client *http.Client, maxConns int) *CatalogSyncer {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &CatalogSyncer{
		state:      state,
		configPath: configPath,
		resolver:   NewIndexResolver(client),
		maxConns:   maxConns,
	}
}

// Run waits on the trigger and refreshes the catalog on each wake. It
// returns when the trigger is closed.
func (s *CatalogSyncer) Run(ctx context.Context) {
	slog.Debug("reloading package catalog")

	newCatalog, err := s.Refresh(ctx, nil)
	if err != nil {
		// A failed pass leaves the previous catalog in place.
		slog.Error("catalog refresh failed", "error", err)
		return
	}

	s.state.ReplaceCatalog(newCatalog)
	slog.Info("catalog refreshed", "packages", len(newCatalog))
}

// Loop runs the wait/refresh cycle until the trigger is closed.
func (s *CatalogSyncer) Loop(ctx context.Context, trigger *Trigger) {
	for {
		if err := trigger.Wait(); err != nil {
			slog.Info("catalog synchronizer stopping")
			return
		}
		s.Run(ctx)
	}
}

// Refresh performs one synchronization pass and returns the new
// catalog without publishing it. progress, when non-nil, is called
// once per package as its resolution finishes.
func (s *CatalogSyncer) Refresh(ctx context.Context, progress func(pkg string)) (Catalog, error) {
	config, err := LoadPackageConfig(s.configPath)
	if err != nil {
		return nil, err
	}

	newCatalog := make(Catalog, len(config.Packages))
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConns)
	for name, entry := range config.Packages {
		group.Go(func() error {
			pkg, err := s.resolvePackage(ctx, config, name, entry)
			if progress != nil {
				defer progress(name)
			}
			if err != nil {
				// Drop this package from the pass; do not abort it.
				slog.Error("failed to resolve package", "package", name, "error", err)
				return nil
			}
			mu.Lock()
			newCatalog[name] = pkg
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait() // workers never return errors

	return newCatalog, nil
}

func (s *CatalogSyncer) resolvePackage(ctx context.Context, config *PackageConfig, name string, entry *PackageEntry) (*Package, error) {
	var pkg *Package
	if entry.Index != "" {
		// Check() guarantees the index reference resolves.
		index := config.Indexes[entry.Index]
		files, err := s.resolver.Resolve(ctx, index.URL.URL, name)
		if err != nil {
			return nil, err
		}
		pkg = &Package{Source: SourceIndex, IndexURL: index.URL.URL, Files: files}
	} else {
		files, err := resolveFolder(entry.Folder, name)
		if err != nil {
			return nil, err
		}
		pkg = &Package{Source: SourceFolder, Folder: entry.Folder, Files: files}
	}

	if entry.Filters != nil {
		pkg.Files = entry.Filters.Apply(name, pkg.Files)
	}

	slog.Debug("package resolved", "package", name, "files", len(pkg.Files))
	return pkg, nil
}

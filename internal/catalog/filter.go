package catalog

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	version "github.com/knqyf263/go-deb-version"
)

// FileFilters narrows the files a package exposes after its source has
// been resolved. Filtering never touches the source; it only trims the
// published listing.
type FileFilters struct {
	KeepVersions    int      `toml:"keep_versions,omitempty"`
	ExcludePatterns []string `toml:"exclude_patterns,omitempty"`
}

// Check validates the filter configuration.
func (f *FileFilters) Check() error {
	if f.KeepVersions < 0 {
		return errors.New("keep_versions must not be negative")
	}
	for _, pattern := range f.ExcludePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return errors.Wrap(err, "bad exclude pattern: "+pattern)
		}
	}
	return nil
}

// fileVersion extracts the version segment from an artifact file name:
// the text between the first dash and the following dash or the
// extension, e.g. "foo-1.2.0-py3.whl" -> "1.2.0".
func fileVersion(name string) string {
	base := name[:len(name)-len(filepath.Ext(name))]
	parts := strings.SplitN(base, "-", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (f *FileFilters) excluded(name string) bool {
	for _, pattern := range f.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Apply returns the files that survive the filters. With KeepVersions
// set, files are grouped by version segment and only the newest N
// version groups are kept; files whose version cannot be compared are
// ordered by plain string comparison.
func (f *FileFilters) Apply(pkg string, files []File) []File {
	kept := make([]File, 0, len(files))
	for _, file := range files {
		if f.excluded(file.Name) {
			slog.Debug("excluding file by pattern", "package", pkg, "file", file.Name)
			continue
		}
		kept = append(kept, file)
	}

	if f.KeepVersions <= 0 {
		return kept
	}

	versions := make([]string, 0, len(kept))
	seen := make(map[string]struct{})
	for _, file := range kept {
		v := fileVersion(file.Name)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			versions = append(versions, v)
		}
	}

	// Sort versions newest first.
	sort.Slice(versions, func(i, j int) bool {
		v1, err1 := version.NewVersion(versions[i])
		v2, err2 := version.NewVersion(versions[j])
		if err1 != nil || err2 != nil {
			return versions[i] > versions[j]
		}
		return v1.GreaterThan(v2)
	})

	if f.KeepVersions < len(versions) {
		versions = versions[:f.KeepVersions]
	}
	keep := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		keep[v] = struct{}{}
	}

	filtered := make([]File, 0, len(kept))
	for _, file := range kept {
		if _, ok := keep[fileVersion(file.Name)]; ok {
			filtered = append(filtered, file)
		}
	}

	if len(filtered) < len(kept) {
		slog.Debug("filtered file versions", "package", pkg,
			"total", len(kept), "kept", len(filtered))
	}
	return filtered
}

package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// artifactExt is the expected package artifact extension for local
// folder sources.
const artifactExt = ".whl"

// resolveFolder scans dir (non-recursive) and returns one local File
// per regular file that carries the artifact extension and whose
// leading name segment (text before the first dash) equals pkg.
// Everything else is skipped, not failed.
func resolveFolder(dir, pkg string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "scan folder for "+pkg)
	}

	var files []File
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		name := entry.Name()
		if !utf8.ValidString(name) {
			slog.Warn("skipping file with non-representable name", "package", pkg, "folder", dir)
			continue
		}
		if filepath.Ext(name) != artifactExt {
			slog.Warn("skipping file with unexpected extension", "package", pkg, "file", name)
			continue
		}

		segment, _, found := strings.Cut(name, "-")
		if !found {
			slog.Warn("skipping file with malformed name", "package", pkg, "file", name)
			continue
		}
		if segment != pkg {
			slog.Debug("skipping file for other package", "package", pkg, "file", name)
			continue
		}

		files = append(files, File{
			Name: name,
			Kind: LocalFile,
			Path: filepath.Join(dir, name),
		})
	}

	return files, nil
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"foo-1.0.whl",    // kept
		"foo-2.0.tar.gz", // wrong extension
		"bar-1.0.whl",    // wrong package
		"foo.whl",        // no version delimiter
		"README",         // not an artifact
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	// Directories are skipped even with a matching name.
	if err := os.Mkdir(filepath.Join(dir, "foo-3.0.whl"), 0750); err != nil {
		t.Fatal(err)
	}

	files, err := resolveFolder(dir, "foo")
	if err != nil {
		t.Fatal(err)
	}

	if len(files) != 1 {
		t.Fatalf("expected exactly one file, got %v", files)
	}
	file := files[0]
	if file.Name != "foo-1.0.whl" {
		t.Error("unexpected file:", file.Name)
	}
	if file.Kind != LocalFile {
		t.Error("folder files must be local")
	}
	if file.Path != filepath.Join(dir, "foo-1.0.whl") {
		t.Error("unexpected path:", file.Path)
	}
}

func TestResolveFolderEmpty(t *testing.T) {
	t.Parallel()

	files, err := resolveFolder(t.TempDir(), "foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Error("empty folder should yield no files, got", files)
	}
}

func TestResolveFolderMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := resolveFolder(filepath.Join(t.TempDir(), "nope"), "foo"); err == nil {
		t.Error("unreadable folder should fail the package")
	}
}

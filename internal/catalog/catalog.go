package catalog

import (
	"net/url"
)

// IndexAuth selects how requests against a remote file source are
// authenticated. Only IndexAuthNone exists today; the fetch paths
// switch exhaustively on this type so that adding a mode is a
// single-site change.
type IndexAuth int

const (
	// IndexAuthNone sends unauthenticated requests.
	IndexAuthNone IndexAuth = iota
)

// FileKind discriminates the two concrete sources a package file can
// have.
type FileKind int

const (
	// LocalFile is a regular file on the local filesystem.
	LocalFile FileKind = iota
	// RemoteFile is fetched from a remote URL at download time.
	RemoteFile
)

// File is one downloadable file belonging to a package.
//
// Kind selects which of the remaining fields are meaningful:
// Path for LocalFile, URL and Auth for RemoteFile. Name is always set
// and is the identity used for lookups within a package.
type File struct {
	Name string
	Kind FileKind

	// LocalFile only.
	Path string

	// RemoteFile only.
	URL  *url.URL
	Auth IndexAuth
}

// SourceKind describes where a package's file listing comes from.
type SourceKind int

const (
	// SourceIndex resolves files by scraping a remote HTML index.
	SourceIndex SourceKind = iota
	// SourceFolder resolves files by scanning a local directory.
	SourceFolder
)

// Package is the resolved metadata for one named package. A Package is
// always replaced as a whole by a synchronization pass, never mutated
// file by file.
type Package struct {
	Source SourceKind

	// SourceIndex only: base URL of the index the files came from.
	IndexURL *url.URL

	// SourceFolder only: the scanned directory.
	Folder string

	Files []File
}

// FindFile returns the file with the given display name, or nil.
func (p *Package) FindFile(name string) *File {
	for i := range p.Files {
		if p.Files[i].Name == name {
			return &p.Files[i]
		}
	}
	return nil
}

// Catalog maps package name to resolved package metadata. Every entry
// in a Catalog was produced by the same synchronization pass.
type Catalog map[string]*Package

// Package storage implements the content-addressed object store and the
// per-revision manifest/commit chain (spec components C1, C2), grounded on
// the teacher's registry/storage/blobstore.go and revisionstore.go path
// derivation style (paths.go's pathMapper).
package storage

import (
	"path/filepath"
	"strings"
)

const (
	objectsDir   = "files"
	revisionsDir = "revisions"
	headFile     = "head"
	stagingFile  = "staging.json"
	manifestName = "manifest.json"
	commitName   = "commit.json"

	// RootRevision is the sentinel parent/head id for an empty repository.
	RootRevision = "root"
)

// objectPath returns the on-disk path for a blob identified by hash, laid
// out as files/<hh>/<rest> per spec §3.
func objectPath(root, hash string) string {
	return filepath.Join(root, objectsDir, hash[:2], hash[2:])
}

func revisionDir(root, id string) string {
	return filepath.Join(root, revisionsDir, id)
}

func manifestPath(root, id string) string {
	return filepath.Join(revisionDir(root, id), manifestName)
}

func commitPath(root, id string) string {
	return filepath.Join(revisionDir(root, id), commitName)
}

func headPath(root string) string {
	return filepath.Join(root, headFile)
}

func stagingPath(root string) string {
	return filepath.Join(root, stagingFile)
}

// ValidatePath enforces I6: absolute, forward-slash separated, no empty,
// "." or ".." segment.
func ValidatePath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	segs := strings.Split(p, "/")
	for _, seg := range segs[1:] {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// ValidateRevisionID rejects ids that could escape the revisions directory
// once joined into a path by revisionDir — path separators or the "."/".."
// special segments.
func ValidateRevisionID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

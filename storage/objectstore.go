package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ObjectStore is the content-addressed blob store rooted at a repository
// directory (C1). Writes stream through a temp file and are published with
// a fsync-then-rename, exactly as the teacher's filesystem storage driver
// and the tessera POSIX storage's overwrite/createEx helpers do.
type ObjectStore struct {
	root string
}

// NewObjectStore returns an ObjectStore rooted at repoRoot.
func NewObjectStore(repoRoot string) *ObjectStore {
	return &ObjectStore{root: repoRoot}
}

// Put streams r into the store, returning its SHA-256 hash and size. A put
// whose target already exists is a dedup no-op: the temp file is discarded
// and the existing object is left untouched.
func (s *ObjectStore) Put(r io.Reader) (hash string, size int64, err error) {
	objDir := filepath.Join(s.root, objectsDir)
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("mkdir objects dir: %w", err)
	}

	tmp, err := os.CreateTemp(objDir, "put-"+uuid.NewString())
	if err != nil {
		return "", 0, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed away

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("stream object content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("fsync temp object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp object: %w", err)
	}

	hash = hex.EncodeToString(h.Sum(nil))
	dst := objectPath(s.root, hash)
	if _, err := os.Stat(dst); err == nil {
		// Already present; dedup, leave existing object alone.
		return hash, n, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, fmt.Errorf("mkdir object shard: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		// Lost the race with a concurrent put of the same content: the
		// destination now exists, which is the dedup outcome we want.
		if _, statErr := os.Stat(dst); statErr == nil {
			return hash, n, nil
		}
		return "", 0, fmt.Errorf("publish object: %w", err)
	}
	return hash, n, nil
}

// Exists reports whether an object with the given hash is present.
func (s *ObjectStore) Exists(hash string) bool {
	_, err := os.Stat(objectPath(s.root, hash))
	return err == nil
}

// PathOf returns the canonical filesystem path of the object with hash,
// whether or not it currently exists.
func (s *ObjectStore) PathOf(hash string) string {
	return objectPath(s.root, hash)
}

// Open returns a reader over the object's content.
func (s *ObjectStore) Open(hash string) (io.ReadCloser, error) {
	f, err := os.Open(objectPath(s.root, hash))
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", hash, err)
	}
	return f, nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

// Entry is one path's record within a manifest.
type Entry struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// Digest returns e's hash formatted as an opencontainers go-digest value
// ("sha256:<hex>"), the wire convention used whenever an object hash needs
// to travel alongside its algorithm tag instead of as a bare hex string.
func (e Entry) Digest() (digest.Digest, error) {
	d := digest.NewDigestFromEncoded(digest.SHA256, e.Hash)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid object hash %q: %w", e.Hash, err)
	}
	return d, nil
}

// ChangeStatus is the kind of difference a Change record describes.
type ChangeStatus string

const (
	StatusNew     ChangeStatus = "new"
	StatusChanged ChangeStatus = "changed"
	StatusDeleted ChangeStatus = "deleted"
)

// Change is one path's difference between two manifests.
type Change struct {
	Path    string       `json:"path"`
	Status  ChangeStatus `json:"status"`
	Hash    string       `json:"hash,omitempty"`
	OldHash string       `json:"old_hash,omitempty"`
}

// sortManifest sorts entries ascending by path, matching the manifest
// store's "sorted by path (ascending, byte-wise)" requirement.
func sortManifest(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

func writeManifest(path string, entries []Entry) error {
	sortManifest(entries)
	return writeJSONAtomic(path, entries)
}

func readManifest(path string) ([]Entry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var entries []Entry
	if err := readJSON(path, &entries); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

// writeJSONAtomic serializes v to path via a temp file, fsync, then rename,
// matching the head-advancement discipline required by spec §4.2 and
// grounded on the tessera POSIX driver's overwrite helper.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes raw bytes to path via temp file, fsync, rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

// Diff computes get_changes_since(A, B) semantics: walks both manifests
// once in ascending-path order, emitting new/deleted/changed records.
// When from is empty (root), every entry of to is emitted as new.
func Diff(from, to []Entry) []Change {
	byPath := func(entries []Entry) map[string]Entry {
		m := make(map[string]Entry, len(entries))
		for _, e := range entries {
			m[e.Path] = e
		}
		return m
	}
	fromMap := byPath(from)
	toMap := byPath(to)

	paths := make(map[string]struct{}, len(from)+len(to))
	for p := range fromMap {
		paths[p] = struct{}{}
	}
	for p := range toMap {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	changes := make([]Change, 0, len(sorted))
	for _, p := range sorted {
		oldEntry, hadOld := fromMap[p]
		newEntry, hasNew := toMap[p]
		switch {
		case !hadOld && hasNew:
			changes = append(changes, Change{Path: p, Status: StatusNew, Hash: newEntry.Hash})
		case hadOld && !hasNew:
			changes = append(changes, Change{Path: p, Status: StatusDeleted, OldHash: oldEntry.Hash})
		case hadOld && hasNew && oldEntry.Hash != newEntry.Hash:
			changes = append(changes, Change{Path: p, Status: StatusChanged, Hash: newEntry.Hash, OldHash: oldEntry.Hash})
		}
	}
	return changes
}

// ApplyChanges returns the manifest obtained by applying changes to base,
// satisfying the round-trip law get_changes_since(A,B) applied to
// manifest(A) == manifest(B).
func ApplyChanges(base []Entry, changes []Change) []Entry {
	m := make(map[string]Entry, len(base))
	for _, e := range base {
		m[e.Path] = e
	}
	for _, c := range changes {
		switch c.Status {
		case StatusDeleted:
			delete(m, c.Path)
		case StatusNew, StatusChanged:
			m[c.Path] = Entry{Path: c.Path, Hash: c.Hash}
		}
	}
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sortManifest(out)
	return out
}

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Revision is the commit record for one revision, excluding its manifest
// (stored separately per spec §4.2).
type Revision struct {
	ID        string `json:"id"`
	Parent    string `json:"parent"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// CommitChain manages the append-only per-repository revision history: the
// manifest/commit record pair for each revision and the head pointer file.
// Grounded on registry/storage/revisionstore.go's per-revision keyed
// storage and paths.go's pathMapper for path derivation.
type CommitChain struct {
	root string
}

// NewCommitChain returns a CommitChain rooted at repoRoot.
func NewCommitChain(repoRoot string) *CommitChain {
	return &CommitChain{root: repoRoot}
}

// GetHead returns the current head revision id, or RootRevision if the
// repository has no commits yet.
func (c *CommitChain) GetHead() (string, error) {
	data, err := os.ReadFile(headPath(c.root))
	if os.IsNotExist(err) {
		return RootRevision, nil
	}
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	if len(data) == 0 {
		return RootRevision, nil
	}
	return string(data), nil
}

// GetManifest returns the sorted entry list for revision id. RootRevision
// maps to the empty manifest.
func (c *CommitChain) GetManifest(id string) ([]Entry, error) {
	if id == RootRevision {
		return nil, nil
	}
	return readManifest(manifestPath(c.root, id))
}

// GetRevision returns the commit record for id.
func (c *CommitChain) GetRevision(id string) (Revision, error) {
	if id == RootRevision {
		return Revision{ID: RootRevision, Parent: RootRevision}, nil
	}
	var rev Revision
	if err := readJSON(commitPath(c.root, id), &rev); err != nil {
		return Revision{}, fmt.Errorf("read commit record %s: %w", id, err)
	}
	return rev, nil
}

// GetCommitChain returns the full history head -> root, most recent first
// (I7: parent links form a single path back to root).
func (c *CommitChain) GetCommitChain() ([]Revision, error) {
	head, err := c.GetHead()
	if err != nil {
		return nil, err
	}
	var chain []Revision
	for id := head; id != RootRevision; {
		rev, err := c.GetRevision(id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rev)
		id = rev.Parent
	}
	return chain, nil
}

// GetFileInfoFromPath resolves path against head and returns its entry.
func (c *CommitChain) GetFileInfoFromPath(path string) (Entry, bool, error) {
	head, err := c.GetHead()
	if err != nil {
		return Entry{}, false, err
	}
	manifest, err := c.GetManifest(head)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range manifest {
		if e.Path == path {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// GetCommitFiles lists every path present in revision id's manifest.
func (c *CommitChain) GetCommitFiles(id string) ([]string, error) {
	manifest, err := c.GetManifest(id)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(manifest))
	for i, e := range manifest {
		paths[i] = e.Path
	}
	return paths, nil
}

// GetCommitChanges returns diff(parent(R), R).
func (c *CommitChain) GetCommitChanges(id string) ([]Change, error) {
	rev, err := c.GetRevision(id)
	if err != nil {
		return nil, err
	}
	return c.GetChangesSince(rev.Parent, id)
}

// GetChangesSince implements get_changes_since(A, B).
func (c *CommitChain) GetChangesSince(from, to string) ([]Change, error) {
	fromManifest, err := c.GetManifest(from)
	if err != nil {
		return nil, err
	}
	toManifest, err := c.GetManifest(to)
	if err != nil {
		return nil, err
	}
	return Diff(fromManifest, toManifest), nil
}

// Advance is the sole publication step (C2): it computes a new revision id
// from the canonical serialization of the commit record, writes manifest
// and commit record to temp names, fsyncs, then atomically renames the
// head pointer. On any failure before the rename, head is left untouched
// and partial files are removed.
func (c *CommitChain) Advance(parent string, manifest []Entry, author, message string, now time.Time) (Revision, error) {
	sortManifest(manifest)

	rev := Revision{
		Parent:    parent,
		Author:    author,
		Message:   message,
		Timestamp: now.Unix(),
	}
	rev.ID = revisionID(rev, manifest)

	if err := writeManifest(manifestPath(c.root, rev.ID), manifest); err != nil {
		c.cleanupPartial(rev.ID)
		return Revision{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := writeJSONAtomic(commitPath(c.root, rev.ID), rev); err != nil {
		c.cleanupPartial(rev.ID)
		return Revision{}, fmt.Errorf("write commit record: %w", err)
	}
	if err := c.setHead(rev.ID); err != nil {
		c.cleanupPartial(rev.ID)
		return Revision{}, fmt.Errorf("advance head: %w", err)
	}
	return rev, nil
}

func (c *CommitChain) cleanupPartial(id string) {
	os.RemoveAll(revisionDir(c.root, id))
}

func (c *CommitChain) setHead(id string) error {
	return writeJSONRawAtomic(headPath(c.root), []byte(id))
}

// writeJSONRawAtomic writes raw bytes (not JSON-encoded) via temp+rename;
// used for the head pointer, which is a bare revision id, not a document.
func writeJSONRawAtomic(path string, data []byte) error {
	return writeFileAtomic(path, data)
}

// revisionID computes the opaque revision id as the hex SHA-256 over the
// canonical serialization of the commit record plus its full manifest
// entries (path, hash, size, mtime).
func revisionID(rev Revision, manifest []Entry) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	enc.Encode(struct {
		Parent    string  `json:"parent"`
		Author    string  `json:"author"`
		Message   string  `json:"message"`
		Timestamp int64   `json:"timestamp"`
		Manifest  []Entry `json:"manifest"`
	}{rev.Parent, rev.Author, rev.Message, rev.Timestamp, manifest})
	return hex.EncodeToString(h.Sum(nil))
}

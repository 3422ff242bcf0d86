package storage

import (
	"fmt"
	"os"
	"time"
)

// stagingDescriptor is the on-disk shape of the staging area (C3), persisted
// with the same temp+rename discipline as the object store and manifest.
type stagingDescriptor struct {
	Active       bool             `json:"active"`
	BaseRevision string           `json:"base_revision"`
	Puts         map[string]Entry `json:"puts"`
	Deletes      map[string]bool  `json:"deletes"`
}

// Staging manages the per-repository commit-in-progress scratch state.
type Staging struct {
	root string
}

// NewStaging returns a Staging rooted at repoRoot.
func NewStaging(repoRoot string) *Staging {
	return &Staging{root: repoRoot}
}

func (s *Staging) load() (stagingDescriptor, error) {
	path := stagingPath(s.root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return stagingDescriptor{Puts: map[string]Entry{}, Deletes: map[string]bool{}}, nil
	}
	var d stagingDescriptor
	if err := readJSON(path, &d); err != nil {
		return stagingDescriptor{}, fmt.Errorf("read staging descriptor: %w", err)
	}
	if d.Puts == nil {
		d.Puts = map[string]Entry{}
	}
	if d.Deletes == nil {
		d.Deletes = map[string]bool{}
	}
	return d, nil
}

func (s *Staging) save(d stagingDescriptor) error {
	return writeJSONAtomic(stagingPath(s.root), d)
}

// Active reports whether state is ACTIVE (have_active_commit).
func (s *Staging) Active() (bool, error) {
	d, err := s.load()
	if err != nil {
		return false, err
	}
	return d.Active, nil
}

// BaseRevision returns the revision the active staging area is pinned to.
func (s *Staging) BaseRevision() (string, error) {
	d, err := s.load()
	if err != nil {
		return "", err
	}
	return d.BaseRevision, nil
}

// Begin transitions IDLE -> ACTIVE, pinning base. Any prior staging is
// discarded implicitly, matching "prior staging has been rolled back"
// being a caller-enforced precondition at the dispatcher level; Begin
// itself always starts from a clean descriptor.
func (s *Staging) Begin(base string) error {
	return s.save(stagingDescriptor{
		Active:       true,
		BaseRevision: base,
		Puts:         map[string]Entry{},
		Deletes:      map[string]bool{},
	})
}

// Put records a staged file write, clearing any pending delete of the same
// path (fs_put_from_file).
func (s *Staging) Put(path, hash string, size int64, mtime time.Time) error {
	d, err := s.load()
	if err != nil {
		return err
	}
	d.Puts[path] = Entry{Path: path, Hash: hash, Size: size, Mtime: mtime.Unix()}
	delete(d.Deletes, path)
	return s.save(d)
}

// Delete records a staged deletion, clearing any pending put of the same
// path (fs_delete).
func (s *Staging) Delete(path string) error {
	d, err := s.load()
	if err != nil {
		return err
	}
	d.Deletes[path] = true
	delete(d.Puts, path)
	return s.save(d)
}

// Rollback transitions ACTIVE -> IDLE, discarding the descriptor. Objects
// already put into the object store during the aborted commit are left in
// place; dedup absorbs any retry.
func (s *Staging) Rollback() error {
	return s.save(stagingDescriptor{Puts: map[string]Entry{}, Deletes: map[string]bool{}})
}

// ApplyTo returns the manifest obtained by applying the current staged puts
// and deletes to base.
func (s *Staging) ApplyTo(base []Entry) ([]Entry, error) {
	d, err := s.load()
	if err != nil {
		return nil, err
	}
	m := make(map[string]Entry, len(base))
	for _, e := range base {
		m[e.Path] = e
	}
	for path := range d.Deletes {
		delete(m, path)
	}
	for path, e := range d.Puts {
		m[path] = e
	}
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sortManifest(out)
	return out, nil
}

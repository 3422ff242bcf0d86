package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitialCommit(t *testing.T) {
	root := t.TempDir()
	objects := NewObjectStore(root)
	chain := NewCommitChain(root)
	staging := NewStaging(root)

	head, err := chain.GetHead()
	require.NoError(t, err)
	require.Equal(t, RootRevision, head)

	require.NoError(t, staging.Begin(RootRevision))

	h1, s1, err := objects.Put(strings.NewReader("test file jhgrtelkj"))
	require.NoError(t, err)
	require.NoError(t, staging.Put("/test1", h1, s1, time.Unix(0, 0)))

	content2 := make([]byte, 256)
	for i := range content2 {
		content2[i] = byte(i)
	}
	h2, s2, err := objects.Put(strings.NewReader(string(content2)))
	require.NoError(t, err)
	require.NoError(t, staging.Put("/test2", h2, s2, time.Unix(0, 0)))

	base, err := chain.GetManifest(RootRevision)
	require.NoError(t, err)
	manifest, err := staging.ApplyTo(base)
	require.NoError(t, err)

	rev, err := chain.Advance(RootRevision, manifest, "alice", "test commit", time.Unix(1000, 0))
	require.NoError(t, err)
	require.NotEmpty(t, rev.ID)
	require.NoError(t, staging.Rollback())

	newHead, err := chain.GetHead()
	require.NoError(t, err)
	require.Equal(t, rev.ID, newHead)

	files, err := chain.GetCommitFiles(rev.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/test1", "/test2"}, files)

	versions, err := chain.GetCommitChain()
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "test commit", versions[0].Message)

	require.True(t, objects.Exists(h1))
	require.True(t, objects.Exists(h2))
}

func TestAddDeleteModifyReportsChanged(t *testing.T) {
	root := t.TempDir()
	objects := NewObjectStore(root)
	chain := NewCommitChain(root)

	h1, _, _ := objects.Put(strings.NewReader("v1"))
	base := []Entry{{Path: "/test1", Hash: h1}, {Path: "/test2", Hash: h1}}
	rev1, err := chain.Advance(RootRevision, base, "alice", "first", time.Unix(0, 0))
	require.NoError(t, err)

	h2, _, _ := objects.Put(strings.NewReader("v2"))
	h3, _, _ := objects.Put(strings.NewReader("content3"))
	h4, _, _ := objects.Put(strings.NewReader("content4"))
	next := []Entry{
		{Path: "/test2", Hash: h2},
		{Path: "/test3", Hash: h3},
		{Path: "/test4", Hash: h4},
	}
	rev2, err := chain.Advance(rev1.ID, next, "alice", "second", time.Unix(1, 0))
	require.NoError(t, err)

	changes, err := chain.GetCommitChanges(rev2.ID)
	require.NoError(t, err)

	got := map[string]ChangeStatus{}
	for _, c := range changes {
		got[c.Path] = c.Status
	}
	// Corrected behavior (spec §9 open question): a path present on both
	// sides with a different hash reports "changed", not "new". The
	// source's legacy new-labeling bug is not reproduced here.
	require.Equal(t, StatusDeleted, got["/test1"])
	require.Equal(t, StatusChanged, got["/test2"])
	require.Equal(t, StatusNew, got["/test3"])
	require.Equal(t, StatusNew, got["/test4"])
}

func TestGetChangesSinceSelfIsEmpty(t *testing.T) {
	root := t.TempDir()
	chain := NewCommitChain(root)
	rev, err := chain.Advance(RootRevision, []Entry{{Path: "/a", Hash: "h"}}, "a", "m", time.Unix(0, 0))
	require.NoError(t, err)

	changes, err := chain.GetChangesSince(rev.ID, rev.ID)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestApplyChangesRoundTrip(t *testing.T) {
	a := []Entry{{Path: "/a", Hash: "h1"}, {Path: "/b", Hash: "h2"}}
	b := []Entry{{Path: "/b", Hash: "h3"}, {Path: "/c", Hash: "h4"}}

	changes := Diff(a, b)
	got := ApplyChanges(a, changes)
	sortManifest(b)
	require.Equal(t, b, got)
}

func TestCommitNeverMovesHeadOnFailure(t *testing.T) {
	root := t.TempDir()
	chain := NewCommitChain(root)

	// Occupy the revisions directory with a plain file so MkdirAll for any
	// revision subdirectory fails, simulating a mid-commit I/O failure.
	require.NoError(t, writeFileAtomic(root+"/revisions", []byte("not a dir")))

	_, err := chain.Advance(RootRevision, []Entry{{Path: "/a", Hash: "h"}}, "a", "m", time.Unix(0, 0))
	require.Error(t, err)

	head, err := chain.GetHead()
	require.NoError(t, err)
	require.Equal(t, RootRevision, head)
}

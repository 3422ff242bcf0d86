package changes

import (
	"testing"

	"github.com/reposync/reposyncd/storage"
	"github.com/stretchr/testify/require"
)

func TestMergePullPush(t *testing.T) {
	server := []storage.Change{{Path: "/a", Status: storage.StatusNew, Hash: "h1"}}
	client := []storage.Change{{Path: "/b", Status: storage.StatusNew, Hash: "h2"}}

	merged, err := Merge(server, client, nil)
	require.NoError(t, err)
	require.Equal(t, []storage.Change{{Path: "/a", Status: storage.StatusNew, Hash: "h1"}}, merged.Pull)
	require.Equal(t, []storage.Change{{Path: "/b", Status: storage.StatusNew, Hash: "h2"}}, merged.Push)
	require.Empty(t, merged.Conflict)
}

func TestMergeConflictOnSharedPath(t *testing.T) {
	server := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hs"}}
	client := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hc"}}

	merged, err := Merge(server, client, nil)
	require.NoError(t, err)
	require.Len(t, merged.Conflict, 1)
	require.Empty(t, merged.Pull)
	require.Empty(t, merged.Push)
}

func TestMergeBothSidesDeletedDroppedSilently(t *testing.T) {
	server := []storage.Change{{Path: "/a", Status: storage.StatusDeleted}}
	client := []storage.Change{{Path: "/a", Status: storage.StatusDeleted}}

	merged, err := Merge(server, client, nil)
	require.NoError(t, err)
	require.Empty(t, merged.Conflict)
	require.Empty(t, merged.Pull)
	require.Empty(t, merged.Push)
}

func TestMergeResolutionRemovesLosingSide(t *testing.T) {
	server := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hs"}}
	client := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hc"}}

	merged, err := Merge(server, client, []Resolution{{Path: "/a", Resolution: ResolutionClient}})
	require.NoError(t, err)
	require.Empty(t, merged.Conflict)
	require.Len(t, merged.Push, 1)
	require.Equal(t, "hc", merged.Push[0].Hash)
	require.Len(t, merged.Resolved, 1)
}

func TestMergeMalformedResolutionFails(t *testing.T) {
	server := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hs"}}
	client := []storage.Change{{Path: "/a", Status: storage.StatusChanged, Hash: "hc"}}

	_, err := Merge(server, client, []Resolution{{Path: "/a", Resolution: "bogus"}})
	require.Error(t, err)
}

func TestMergeSixPathConflictScenario(t *testing.T) {
	server := []storage.Change{
		{Path: "/test1", Status: storage.StatusDeleted},
		{Path: "/test2", Status: storage.StatusChanged, Hash: "s2"},
		{Path: "/test3", Status: storage.StatusChanged, Hash: "s3"},
		{Path: "/test4", Status: storage.StatusDeleted},
		{Path: "/test5", Status: storage.StatusChanged, Hash: "s5"},
		{Path: "/test6", Status: storage.StatusChanged, Hash: "s6"},
	}
	client := []storage.Change{
		{Path: "/test1", Status: storage.StatusChanged, Hash: "c1"},
		{Path: "/test2", Status: storage.StatusDeleted},
		{Path: "/test3", Status: storage.StatusChanged, Hash: "c3"},
		{Path: "/test4", Status: storage.StatusChanged, Hash: "c4"},
		{Path: "/test5", Status: storage.StatusChanged, Hash: "c5"},
		{Path: "/test6", Status: storage.StatusChanged, Hash: "c6"},
	}

	merged, err := Merge(server, client, nil)
	require.NoError(t, err)
	require.Len(t, merged.Conflict, 6)

	resolutions := []Resolution{
		{Path: "/test1", Resolution: ResolutionClient},
		{Path: "/test2", Resolution: ResolutionServer},
		{Path: "/test3", Resolution: ResolutionClient},
		{Path: "/test4", Resolution: ResolutionServer},
		{Path: "/test5", Resolution: ResolutionClient},
		{Path: "/test6", Resolution: ResolutionServer},
	}
	merged, err = Merge(server, client, resolutions)
	require.NoError(t, err)
	require.Empty(t, merged.Conflict)
	require.Len(t, merged.Resolved, 6)
}

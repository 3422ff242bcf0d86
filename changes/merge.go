// Package changes implements the three-way merge that drives client
// reconciliation (spec §4.6): diffing two change sets into conflict/pull/
// push/resolved partitions, consuming the client's conflict_resolutions.
// New relative to the teacher (a blob registry has no reconciliation
// concept); written in the style of the manifest diff helpers in storage,
// as pure functions over sorted slices.
package changes

import (
	"fmt"
	"sort"

	"github.com/reposync/reposyncd/storage"
)

// ResolutionSide names which side's change wins a conflict.
type ResolutionSide string

const (
	ResolutionClient ResolutionSide = "client"
	ResolutionServer ResolutionSide = "server"
)

// Resolution is the wire shape of one conflict_resolutions entry.
type Resolution struct {
	Path       string         `json:"1_path"`
	Resolution ResolutionSide `json:"4_resolution"`
}

// Merged partitions the server/client change sets per spec §4.6.
type Merged struct {
	Conflict []storage.Change
	Pull     []storage.Change
	Push     []storage.Change
	Resolved []storage.Change
}

// Merge produces the sorted_changes structure from the server's changes
// since the client's base revision and the client's own pending changes,
// applying any supplied conflict resolutions first.
func Merge(serverChanges, clientChanges []storage.Change, resolutions []Resolution) (Merged, error) {
	serverByPath := indexByPath(serverChanges)
	clientByPath := indexByPath(clientChanges)

	var merged Merged
	for _, r := range resolutions {
		if r.Resolution != ResolutionClient && r.Resolution != ResolutionServer {
			return Merged{}, fmt.Errorf("malformed conflict resolution for %q", r.Path)
		}
		sChange, inServer := serverByPath[r.Path]
		cChange, inClient := clientByPath[r.Path]
		if !inServer || !inClient {
			continue
		}
		if r.Resolution == ResolutionClient {
			delete(serverByPath, r.Path)
			merged.Resolved = append(merged.Resolved, cChange)
		} else {
			delete(clientByPath, r.Path)
			merged.Resolved = append(merged.Resolved, sChange)
		}
	}

	sort.Slice(merged.Resolved, func(i, j int) bool { return merged.Resolved[i].Path < merged.Resolved[j].Path })

	paths := unionPaths(serverByPath, clientByPath)
	for _, p := range paths {
		sChange, inServer := serverByPath[p]
		cChange, inClient := clientByPath[p]

		switch {
		case inServer && inClient:
			if sChange.Status == storage.StatusDeleted && cChange.Status == storage.StatusDeleted {
				// Both sides deleted it: silently dropped, no action.
				continue
			}
			merged.Conflict = append(merged.Conflict, sChange)
		case inServer:
			merged.Pull = append(merged.Pull, sChange)
		case inClient:
			merged.Push = append(merged.Push, cChange)
		}
	}

	return merged, nil
}

func indexByPath(changes []storage.Change) map[string]storage.Change {
	m := make(map[string]storage.Change, len(changes))
	for _, c := range changes {
		m[c.Path] = c
	}
	return m
}

func unionPaths(a, b map[string]storage.Change) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for p := range a {
		seen[p] = struct{}{}
	}
	for p := range b {
		seen[p] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

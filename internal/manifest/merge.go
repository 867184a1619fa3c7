package manifest

import (
	"time"

	"github.com/kettleworks/storysync/internal/device"
	"github.com/kettleworks/storysync/internal/model"
)

// Merge produces the manifest to persist remotely after a sync round.
// It is a pure function: no I/O, inputs are not mutated.
//
// Rules:
//   - version = max(local, remote) + 1 (remote counts as 0 when absent)
//   - start from local's entity maps
//   - overlay every downloaded id with the remote metadata, so hashes
//     reflect the side actually kept rather than a partial re-hash
//   - drop every id queued for deletion on either side
//   - union deletedItems from both manifests, de-duplicated by id
//   - restamp device identity and time
//
// A tombstone never survives for an id that remains live in the merged
// manifest.
func Merge(
	local, remote *Manifest,
	downloaded map[model.Category][]string,
	deleted []string,
	id device.Identity,
	now time.Time,
) *Manifest {
	remoteVersion := 0
	if remote != nil {
		remoteVersion = remote.Version
	}
	version := local.Version
	if remoteVersion > version {
		version = remoteVersion
	}

	merged := New()
	merged.Version = version + 1
	merged.LastModified = now
	merged.LastModifiedDeviceID = id.ID
	merged.LastModifiedDeviceName = id.Name

	deletedSet := make(map[string]struct{}, len(deleted))
	for _, delID := range deleted {
		deletedSet[delID] = struct{}{}
	}

	for _, cat := range model.Categories() {
		for recID, meta := range local.Items[cat] {
			if _, gone := deletedSet[recID]; gone {
				continue
			}
			merged.Items[cat][recID] = meta
		}
	}

	if remote != nil {
		for cat, ids := range downloaded {
			for _, recID := range ids {
				if _, gone := deletedSet[recID]; gone {
					continue
				}
				if meta, ok := remote.Get(cat, recID); ok {
					merged.Items[cat][recID] = meta
				}
			}
		}
	}

	merged.DeletedItems = unionTombstones(local, remote, merged)

	return merged
}

// unionTombstones merges both manifests' deletion records, keeping one
// tombstone per id and dropping any whose id is live in the merged
// manifest. Which copy survives a duplicate is immaterial: only id and
// type matter for propagation.
func unionTombstones(local, remote, merged *Manifest) []model.Tombstone {
	seen := make(map[string]struct{})
	var out []model.Tombstone

	add := func(tombstones []model.Tombstone) {
		for _, ts := range tombstones {
			if _, dup := seen[ts.ID]; dup {
				continue
			}
			if _, live := merged.Get(ts.Type, ts.ID); live {
				continue
			}
			seen[ts.ID] = struct{}{}
			out = append(out, ts)
		}
	}

	add(local.DeletedItems)
	if remote != nil {
		add(remote.DeletedItems)
	}
	return out
}

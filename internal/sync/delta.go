package sync

import (
	"sort"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/manifest"
	"github.com/kettleworks/storysync/internal/model"
)

// FileTransfers lists image ids whose binary payloads move alongside
// their metadata.
type FileTransfers struct {
	Upload   []string
	Download []string
}

// DeleteSet splits pending deletions by the side they apply to. Remote
// holds local tombstones whose objects must be removed from the remote;
// Local holds remote tombstones whose records must be removed here.
type DeleteSet struct {
	Remote []model.Tombstone
	Local  []model.Tombstone
}

// Delta is the work plan for one sync round: what to upload, download,
// and delete, plus the conflicts that block a decision.
type Delta struct {
	ToUpload   map[model.Category][]string
	ToDownload map[model.Category][]string
	Files      FileTransfers
	ToDelete   DeleteSet
	Conflicts  []Conflict
}

// NewDelta returns an empty delta with category maps allocated.
func NewDelta() *Delta {
	return &Delta{
		ToUpload:   make(map[model.Category][]string),
		ToDownload: make(map[model.Category][]string),
	}
}

// HasChanges reports whether the delta contains any work at all,
// conflicts included.
func (d *Delta) HasChanges() bool {
	for _, ids := range d.ToUpload {
		if len(ids) > 0 {
			return true
		}
	}
	for _, ids := range d.ToDownload {
		if len(ids) > 0 {
			return true
		}
	}
	return len(d.ToDelete.Remote) > 0 ||
		len(d.ToDelete.Local) > 0 ||
		len(d.Conflicts) > 0
}

// UploadCount returns the total number of metadata uploads planned.
func (d *Delta) UploadCount() int {
	n := 0
	for _, ids := range d.ToUpload {
		n += len(ids)
	}
	return n
}

// DownloadCount returns the total number of metadata downloads planned.
func (d *Delta) DownloadCount() int {
	n := 0
	for _, ids := range d.ToDownload {
		n += len(ids)
	}
	return n
}

// NameLookup resolves a record id to a display name for conflict
// reporting. The local store satisfies it.
type NameLookup interface {
	DocumentName(category model.Category, id string) string
}

// Calculator computes the delta between a local and a remote manifest.
type Calculator struct {
	names NameLookup
}

// NewCalculator creates a calculator. names may be nil, in which case
// conflicts carry the record id as their display name.
func NewCalculator(names NameLookup) *Calculator {
	return &Calculator{names: names}
}

// Compare diffs the two manifests into a work plan. A nil remote means
// the remote has never been synced to; everything local is uploaded.
//
// Changes on both sides are attributed through the manifests'
// last-modified device. When both manifests were last written by the
// same device the later updatedAt wins silently; different devices
// produce a conflict for the caller to resolve.
func (c *Calculator) Compare(local, remote *manifest.Manifest) *Delta {
	d := NewDelta()

	if remote == nil {
		for _, cat := range model.Categories() {
			for id := range local.Items[cat] {
				d.ToUpload[cat] = append(d.ToUpload[cat], id)
				if cat.HasBinary() {
					d.Files.Upload = append(d.Files.Upload, id)
				}
			}
		}
		d.sortPlan()
		return d
	}

	remoteDeleted := tombstoneIndex(remote.DeletedItems)
	localDeleted := tombstoneIndex(local.DeletedItems)

	for _, cat := range model.Categories() {
		localItems := local.Items[cat]
		remoteItems := remote.Items[cat]

		for id, lm := range localItems {
			rm, onRemote := remoteItems[id]
			if !onRemote {
				if ts, deleted := remoteDeleted[id]; deleted {
					// Another device deleted it; propagate here.
					d.ToDelete.Local = append(d.ToDelete.Local, ts)
					continue
				}
				d.queueUpload(cat, id)
				continue
			}

			if lm.Hash == rm.Hash {
				continue
			}

			if local.LastModifiedDeviceID == remote.LastModifiedDeviceID {
				// Both manifests written by this device; no concurrent
				// editor exists, so the later timestamp wins silently.
				if lm.UpdatedAt.After(rm.UpdatedAt) {
					d.queueUpload(cat, id)
				} else {
					d.queueDownload(cat, id)
				}
				continue
			}

			d.Conflicts = append(d.Conflicts, Conflict{
				ItemID:   id,
				Type:     cat,
				ItemName: c.displayName(cat, id),
				Local: ConflictSide{
					Version:    lm.Version,
					UpdatedAt:  lm.UpdatedAt,
					DeviceID:   local.LastModifiedDeviceID,
					DeviceName: local.LastModifiedDeviceName,
				},
				Remote: ConflictSide{
					Version:    rm.Version,
					UpdatedAt:  rm.UpdatedAt,
					DeviceID:   remote.LastModifiedDeviceID,
					DeviceName: remote.LastModifiedDeviceName,
				},
			})
		}

		for id := range remoteItems {
			if _, onLocal := localItems[id]; onLocal {
				continue
			}
			if ts, deleted := localDeleted[id]; deleted {
				// Deleted here; propagate to the remote.
				d.ToDelete.Remote = append(d.ToDelete.Remote, ts)
				continue
			}
			d.queueDownload(cat, id)
		}
	}

	d.sortPlan()

	logging.Debug("computed sync delta",
		logging.Count(d.UploadCount()+d.DownloadCount()),
		logging.Operation("compare"),
	)
	return d
}

func (c *Calculator) displayName(cat model.Category, id string) string {
	if c.names == nil {
		return id
	}
	return c.names.DocumentName(cat, id)
}

func (d *Delta) queueUpload(cat model.Category, id string) {
	d.ToUpload[cat] = append(d.ToUpload[cat], id)
	if cat.HasBinary() {
		d.Files.Upload = append(d.Files.Upload, id)
	}
}

func (d *Delta) queueDownload(cat model.Category, id string) {
	d.ToDownload[cat] = append(d.ToDownload[cat], id)
	if cat.HasBinary() {
		d.Files.Download = append(d.Files.Download, id)
	}
}

// sortPlan gives every id list a stable order. Manifest maps iterate
// randomly; the plan should not.
func (d *Delta) sortPlan() {
	for _, ids := range d.ToUpload {
		sort.Strings(ids)
	}
	for _, ids := range d.ToDownload {
		sort.Strings(ids)
	}
	sort.Strings(d.Files.Upload)
	sort.Strings(d.Files.Download)
	sort.Slice(d.ToDelete.Remote, func(i, j int) bool {
		return d.ToDelete.Remote[i].ID < d.ToDelete.Remote[j].ID
	})
	sort.Slice(d.ToDelete.Local, func(i, j int) bool {
		return d.ToDelete.Local[i].ID < d.ToDelete.Local[j].ID
	})
	sort.Slice(d.Conflicts, func(i, j int) bool {
		return d.Conflicts[i].ItemID < d.Conflicts[j].ItemID
	})
}

func tombstoneIndex(tombstones []model.Tombstone) map[string]model.Tombstone {
	idx := make(map[string]model.Tombstone, len(tombstones))
	for _, ts := range tombstones {
		idx[ts.ID] = ts
	}
	return idx
}

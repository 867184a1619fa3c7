package manifest

import (
	"fmt"
	"time"

	"github.com/kettleworks/storysync/internal/device"
	"github.com/kettleworks/storysync/internal/hash"
	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/store"
)

// Builder assembles the transient local manifest from the document store.
type Builder struct {
	store    *store.Store
	hasher   *hash.Hasher
	identity device.Identity
}

// NewBuilder creates a builder over the given store and hasher, stamping
// manifests with the given device identity.
func NewBuilder(s *store.Store, h *hash.Hasher, id device.Identity) *Builder {
	return &Builder{
		store:    s,
		hasher:   h,
		identity: id,
	}
}

// Build reads every local record, hashes it, and assembles the manifest
// snapshot. An empty store yields a manifest with empty maps, not an
// error. Item versions are set to 1; real versioning happens at merge.
func (b *Builder) Build() (*Manifest, error) {
	defer logging.Timer("manifest build")()

	lastVersion, err := b.store.ManifestVersion()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest version: %w", err)
	}

	m := New()
	m.Version = lastVersion + 1
	m.LastModified = time.Now()
	m.LastModifiedDeviceID = b.identity.ID
	m.LastModifiedDeviceName = b.identity.Name

	for _, cat := range model.Categories() {
		docs, err := b.store.ListDocuments(cat)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s records: %w", cat, err)
		}

		for _, doc := range docs {
			h, err := b.hasher.Hash(doc.Fields)
			if err != nil {
				return nil, fmt.Errorf("failed to hash %s/%s: %w", cat, doc.ID, err)
			}
			m.Items[cat][doc.ID] = ItemMeta{
				ID:        doc.ID,
				Hash:      h,
				UpdatedAt: doc.UpdatedAt,
				Version:   1,
			}
		}

		logging.Debug("built category manifest",
			logging.Category(string(cat)),
			logging.Count(len(docs)),
		)
	}

	m.DeletedItems = b.store.Tombstones()

	return m, nil
}

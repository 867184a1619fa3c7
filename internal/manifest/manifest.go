// Package manifest defines the sync manifest, builds it from the local
// store, and merges local and remote manifests after a sync round.
//
// A manifest is a complete snapshot of which records exist, their content
// hashes, and recent deletions. Exactly one manifest exists remotely at a
// time; each device rebuilds its own local manifest from scratch before
// every round so it can never drift from actual local state.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kettleworks/storysync/internal/model"
)

// SchemaVersion is the current manifest schema version.
const SchemaVersion = 1

// ItemMeta is the per-record sync metadata carried in a manifest.
type ItemMeta struct {
	// ID is the record's identifier.
	ID string

	// Hash is the canonical content hash of the record.
	Hash string

	// UpdatedAt is the record's own last-modified time.
	UpdatedAt time.Time

	// Version counts how many sync rounds have carried this record.
	Version int

	// SyncedAt is when the record last took part in a successful round,
	// if ever.
	SyncedAt *time.Time
}

// Manifest is the authoritative snapshot of synced state.
type Manifest struct {
	// Version increases by one on every successful sync round.
	Version int

	// SchemaVersion identifies the wire-format revision.
	SchemaVersion int

	// LastModified is when this manifest was produced.
	LastModified time.Time

	// LastModifiedDeviceID attributes the manifest to a device.
	LastModifiedDeviceID string

	// LastModifiedDeviceName is the producing device's label.
	LastModifiedDeviceName string

	// Items maps each category to its id → metadata map.
	Items map[model.Category]map[string]ItemMeta

	// DeletedItems are the tombstones known at production time.
	DeletedItems []model.Tombstone
}

// New returns an empty manifest with maps allocated for every category.
func New() *Manifest {
	items := make(map[model.Category]map[string]ItemMeta, len(model.Categories()))
	for _, cat := range model.Categories() {
		items[cat] = make(map[string]ItemMeta)
	}
	return &Manifest{
		SchemaVersion: SchemaVersion,
		Items:         items,
	}
}

// Get returns the metadata for a record, if present.
func (m *Manifest) Get(cat model.Category, id string) (ItemMeta, bool) {
	metas, ok := m.Items[cat]
	if !ok {
		return ItemMeta{}, false
	}
	meta, ok := metas[id]
	return meta, ok
}

// Set stores the metadata for a record, allocating the category map when
// needed.
func (m *Manifest) Set(cat model.Category, meta ItemMeta) {
	if m.Items == nil {
		m.Items = make(map[model.Category]map[string]ItemMeta)
	}
	if m.Items[cat] == nil {
		m.Items[cat] = make(map[string]ItemMeta)
	}
	m.Items[cat][meta.ID] = meta
}

// ItemCount returns the total number of records across all categories.
func (m *Manifest) ItemCount() int {
	n := 0
	for _, metas := range m.Items {
		n += len(metas)
	}
	return n
}

// isoTime renders a timestamp as an ISO-8601 UTC string at second
// precision, the only date representation on the wire.
func isoTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// wireItem is ItemMeta as serialized.
type wireItem struct {
	ID        string `json:"id"`
	Hash      string `json:"hash"`
	UpdatedAt string `json:"updatedAt"`
	Version   int    `json:"version"`
	SyncedAt  string `json:"syncedAt,omitempty"`
}

// wireTombstone is a deletion record as serialized.
type wireTombstone struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	DeletedAt         string `json:"deletedAt"`
	DeletedByDeviceID string `json:"deletedByDeviceId"`
}

// MarshalJSON renders the wire format: fixed header fields, one map per
// category keyed by its plural name, and deletedItems.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"version":                m.Version,
		"schemaVersion":          m.SchemaVersion,
		"lastModified":           isoTime(m.LastModified),
		"lastModifiedDeviceId":   m.LastModifiedDeviceID,
		"lastModifiedDeviceName": m.LastModifiedDeviceName,
	}

	for _, cat := range model.Categories() {
		items := make(map[string]wireItem, len(m.Items[cat]))
		for id, meta := range m.Items[cat] {
			wi := wireItem{
				ID:        meta.ID,
				Hash:      meta.Hash,
				UpdatedAt: isoTime(meta.UpdatedAt),
				Version:   meta.Version,
			}
			if meta.SyncedAt != nil {
				wi.SyncedAt = isoTime(*meta.SyncedAt)
			}
			items[id] = wi
		}
		out[cat.PluralKey()] = items
	}

	deleted := make([]wireTombstone, 0, len(m.DeletedItems))
	for _, ts := range m.DeletedItems {
		deleted = append(deleted, wireTombstone{
			ID:                ts.ID,
			Type:              string(ts.Type),
			DeletedAt:         isoTime(ts.DeletedAt),
			DeletedByDeviceID: ts.DeletedByDeviceID,
		})
	}
	out["deletedItems"] = deleted

	return json.Marshal(out)
}

// UnmarshalJSON parses the wire format. Unknown top-level keys are
// ignored so newer devices can add categories without breaking older
// ones.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("malformed manifest: %w", err)
	}

	header := struct {
		Version                int    `json:"version"`
		SchemaVersion          int    `json:"schemaVersion"`
		LastModified           string `json:"lastModified"`
		LastModifiedDeviceID   string `json:"lastModifiedDeviceId"`
		LastModifiedDeviceName string `json:"lastModifiedDeviceName"`
	}{}
	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("malformed manifest header: %w", err)
	}

	m.Version = header.Version
	m.SchemaVersion = header.SchemaVersion
	m.LastModifiedDeviceID = header.LastModifiedDeviceID
	m.LastModifiedDeviceName = header.LastModifiedDeviceName
	if header.LastModified != "" {
		t, err := time.Parse(time.RFC3339, header.LastModified)
		if err != nil {
			return fmt.Errorf("malformed manifest lastModified: %w", err)
		}
		m.LastModified = t
	}

	m.Items = make(map[model.Category]map[string]ItemMeta, len(model.Categories()))
	for _, cat := range model.Categories() {
		m.Items[cat] = make(map[string]ItemMeta)
		msg, ok := raw[cat.PluralKey()]
		if !ok {
			continue
		}
		var items map[string]wireItem
		if err := json.Unmarshal(msg, &items); err != nil {
			return fmt.Errorf("malformed manifest %s map: %w", cat.PluralKey(), err)
		}
		for id, wi := range items {
			meta := ItemMeta{
				ID:      wi.ID,
				Hash:    wi.Hash,
				Version: wi.Version,
			}
			if meta.ID == "" {
				meta.ID = id
			}
			if wi.UpdatedAt != "" {
				t, err := time.Parse(time.RFC3339, wi.UpdatedAt)
				if err != nil {
					return fmt.Errorf("malformed updatedAt for %s/%s: %w", cat, id, err)
				}
				meta.UpdatedAt = t
			}
			if wi.SyncedAt != "" {
				t, err := time.Parse(time.RFC3339, wi.SyncedAt)
				if err != nil {
					return fmt.Errorf("malformed syncedAt for %s/%s: %w", cat, id, err)
				}
				meta.SyncedAt = &t
			}
			m.Items[cat][id] = meta
		}
	}

	m.DeletedItems = nil
	if msg, ok := raw["deletedItems"]; ok {
		var deleted []wireTombstone
		if err := json.Unmarshal(msg, &deleted); err != nil {
			return fmt.Errorf("malformed manifest deletedItems: %w", err)
		}
		for _, wt := range deleted {
			ts := model.Tombstone{
				ID:                wt.ID,
				Type:              model.Category(wt.Type),
				DeletedByDeviceID: wt.DeletedByDeviceID,
			}
			if wt.DeletedAt != "" {
				t, err := time.Parse(time.RFC3339, wt.DeletedAt)
				if err != nil {
					return fmt.Errorf("malformed deletedAt for tombstone %s: %w", wt.ID, err)
				}
				ts.DeletedAt = t
			}
			m.DeletedItems = append(m.DeletedItems, ts)
		}
	}

	return nil
}

package manifest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kettleworks/storysync/internal/model"
)

func sampleManifest() *Manifest {
	m := New()
	m.Version = 3
	m.LastModified = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m.LastModifiedDeviceID = "device-abc"
	m.LastModifiedDeviceName = "Studio Mac"

	synced := time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC)
	m.Set(model.CategoryProject, ItemMeta{
		ID:        "p1",
		Hash:      "aabb",
		UpdatedAt: time.Date(2026, 4, 29, 8, 0, 0, 0, time.UTC),
		Version:   2,
		SyncedAt:  &synced,
	})
	m.Set(model.CategoryImage, ItemMeta{
		ID:        "img1",
		Hash:      "ccdd",
		UpdatedAt: time.Date(2026, 4, 28, 7, 0, 0, 0, time.UTC),
		Version:   1,
	})
	m.DeletedItems = []model.Tombstone{{
		ID:                "old1",
		Type:              model.CategoryCharacter,
		DeletedAt:         time.Date(2026, 4, 20, 6, 0, 0, 0, time.UTC),
		DeletedByDeviceID: "device-xyz",
	}}
	return m
}

func TestManifestJSONRoundTrip(t *testing.T) {
	original := sampleManifest()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Version != 3 || decoded.SchemaVersion != SchemaVersion {
		t.Errorf("version = %d/%d, want 3/%d", decoded.Version, decoded.SchemaVersion, SchemaVersion)
	}
	if decoded.LastModifiedDeviceID != "device-abc" {
		t.Errorf("device id = %q", decoded.LastModifiedDeviceID)
	}
	if !decoded.LastModified.Equal(original.LastModified) {
		t.Errorf("lastModified = %v, want %v", decoded.LastModified, original.LastModified)
	}

	meta, ok := decoded.Get(model.CategoryProject, "p1")
	if !ok {
		t.Fatal("p1 missing after round trip")
	}
	if meta.Hash != "aabb" || meta.Version != 2 {
		t.Errorf("p1 meta = %+v", meta)
	}
	if meta.SyncedAt == nil || !meta.SyncedAt.Equal(time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("p1 syncedAt = %v", meta.SyncedAt)
	}

	if len(decoded.DeletedItems) != 1 || decoded.DeletedItems[0].ID != "old1" {
		t.Errorf("deletedItems = %+v", decoded.DeletedItems)
	}
	if decoded.DeletedItems[0].Type != model.CategoryCharacter {
		t.Errorf("tombstone type = %q", decoded.DeletedItems[0].Type)
	}
}

func TestManifestWireShape(t *testing.T) {
	data, err := json.Marshal(sampleManifest())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Every category map appears under its plural key even when empty.
	for _, key := range []string{
		"version", "schemaVersion", "lastModified",
		"lastModifiedDeviceId", "lastModifiedDeviceName",
		"projects", "characters", "images", "editions",
		"scriptPages", "panels", "deletedItems",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire format missing key %q", key)
		}
	}

	// Dates travel as ISO-8601 strings, never objects.
	if !strings.Contains(string(raw["lastModified"]), "2026-05-01T10:00:00Z") {
		t.Errorf("lastModified = %s, want ISO-8601 string", raw["lastModified"])
	}
}

func TestManifestUnmarshalIgnoresUnknownCategories(t *testing.T) {
	payload := `{
		"version": 1,
		"schemaVersion": 1,
		"lastModified": "2026-05-01T10:00:00Z",
		"lastModifiedDeviceId": "device-a",
		"lastModifiedDeviceName": "A",
		"projects": {"p1": {"id": "p1", "hash": "h", "updatedAt": "2026-05-01T09:00:00Z", "version": 1}},
		"storyboards": {"sb1": {"id": "sb1", "hash": "x", "updatedAt": "2026-05-01T09:00:00Z", "version": 1}},
		"deletedItems": []
	}`

	var m Manifest
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := m.Get(model.CategoryProject, "p1"); !ok {
		t.Error("known category lost")
	}
}

func TestManifestUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{broken`},
		{"bad date", `{"version":1,"lastModified":"yesterday"}`},
		{"bad category map", `{"version":1,"projects":[1,2,3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Manifest
			if err := json.Unmarshal([]byte(tt.payload), &m); err == nil {
				t.Error("expected error for malformed manifest")
			}
		})
	}
}

func TestItemCount(t *testing.T) {
	m := sampleManifest()
	if got := m.ItemCount(); got != 2 {
		t.Errorf("ItemCount() = %d, want 2", got)
	}
	if got := New().ItemCount(); got != 0 {
		t.Errorf("empty ItemCount() = %d, want 0", got)
	}
}

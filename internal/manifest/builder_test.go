package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kettleworks/storysync/internal/device"
	"github.com/kettleworks/storysync/internal/hash"
	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/store"
)

func testBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "storysync.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id := device.Identity{ID: "device-test", Name: "Test Device"}
	return NewBuilder(s, hash.New(), id), s
}

func TestBuildEmptyStore(t *testing.T) {
	b, _ := testBuilder(t)

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if m.Version != 1 {
		t.Errorf("Version = %d, want 1 for fresh store", m.Version)
	}
	for _, cat := range model.Categories() {
		if len(m.Items[cat]) != 0 {
			t.Errorf("Items[%s] not empty", cat)
		}
	}
	if len(m.DeletedItems) != 0 {
		t.Errorf("DeletedItems = %+v, want none", m.DeletedItems)
	}
	if m.LastModifiedDeviceID != "device-test" {
		t.Errorf("device id = %q", m.LastModifiedDeviceID)
	}
}

func TestBuildHashesDocuments(t *testing.T) {
	b, s := testBuilder(t)

	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := model.Document{
		ID:        "p1",
		Name:      "Skyline",
		UpdatedAt: updated,
		Fields:    map[string]any{"id": "p1", "name": "Skyline"},
	}
	if err := s.PutDocument(model.CategoryProject, doc); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	meta, ok := m.Get(model.CategoryProject, "p1")
	if !ok {
		t.Fatal("p1 missing from manifest")
	}
	want, _ := hash.New().Hash(doc.Fields)
	if meta.Hash != want {
		t.Errorf("hash = %q, want %q", meta.Hash, want)
	}
	if !meta.UpdatedAt.Equal(updated) {
		t.Errorf("updatedAt = %v, want %v", meta.UpdatedAt, updated)
	}
	if meta.Version != 1 {
		t.Errorf("item version = %d, want 1 (versioning is the merge's job)", meta.Version)
	}
}

func TestBuildVersionFollowsPersisted(t *testing.T) {
	b, s := testBuilder(t)

	if err := s.SetManifestVersion(6); err != nil {
		t.Fatalf("SetManifestVersion() error = %v", err)
	}

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.Version != 7 {
		t.Errorf("Version = %d, want persisted+1 = 7", m.Version)
	}
}

func TestBuildIncludesTombstones(t *testing.T) {
	b, s := testBuilder(t)

	if err := s.RecordDeletion("gone1", model.CategoryCharacter, "device-test"); err != nil {
		t.Fatalf("RecordDeletion() error = %v", err)
	}

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(m.DeletedItems) != 1 || m.DeletedItems[0].ID != "gone1" {
		t.Errorf("DeletedItems = %+v", m.DeletedItems)
	}
}

package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kettleworks/storysync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "storysync.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id, name string) model.Document {
	return model.Document{
		ID:        id,
		Name:      name,
		UpdatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"id":   id,
			"name": name,
		},
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(model.CategoryProject, testDoc("p1", "Skyline")); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	got, err := s.GetDocument(model.CategoryProject, "p1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.ID != "p1" || got.Name != "Skyline" {
		t.Errorf("got %q/%q, want p1/Skyline", got.ID, got.Name)
	}
	if got.Fields["name"] != "Skyline" {
		t.Errorf("Fields[name] = %v, want Skyline", got.Fields["name"])
	}
	if !got.UpdatedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDocument(model.CategoryProject, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsEmptyStore(t *testing.T) {
	s := openTestStore(t)

	for _, cat := range model.Categories() {
		docs, err := s.ListDocuments(cat)
		if err != nil {
			t.Fatalf("ListDocuments(%s) error = %v", cat, err)
		}
		if len(docs) != 0 {
			t.Errorf("ListDocuments(%s) = %d docs, want 0", cat, len(docs))
		}
	}
}

func TestListDocumentsSkipsCorruptBody(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(model.CategoryCharacter, testDoc("c1", "Mira")); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	_, err := s.Exec(`
		INSERT INTO documents (category, id, name, updated_at, body)
		VALUES (?, ?, ?, ?, ?)
	`, model.CategoryCharacter, "c2", "broken", time.Now().UTC(), "{not json")
	if err != nil {
		t.Fatalf("raw insert error = %v", err)
	}

	docs, err := s.ListDocuments(model.CategoryCharacter)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "c1" {
		t.Errorf("expected only c1 to survive, got %+v", docs)
	}
}

func TestRemoveDocumentRecordsTombstone(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(model.CategoryProject, testDoc("p1", "Skyline")); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if err := s.RemoveDocument(model.CategoryProject, "p1", "device-a"); err != nil {
		t.Fatalf("RemoveDocument() error = %v", err)
	}

	if _, err := s.GetDocument(model.CategoryProject, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("document still present after remove: %v", err)
	}

	tombs := s.Tombstones()
	if len(tombs) != 1 {
		t.Fatalf("tombstones = %d, want 1", len(tombs))
	}
	if tombs[0].ID != "p1" || tombs[0].Type != model.CategoryProject {
		t.Errorf("unexpected tombstone %+v", tombs[0])
	}
	if tombs[0].DeletedByDeviceID != "device-a" {
		t.Errorf("DeletedByDeviceID = %q, want device-a", tombs[0].DeletedByDeviceID)
	}
}

func TestDeleteDocumentDoesNotRecordTombstone(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(model.CategoryPanel, testDoc("pn1", "")); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if err := s.DeleteDocument(model.CategoryPanel, "pn1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if got := s.Tombstones(); len(got) != 0 {
		t.Errorf("plain delete produced tombstones: %+v", got)
	}

	// Deleting an absent document is fine.
	if err := s.DeleteDocument(model.CategoryPanel, "pn1"); err != nil {
		t.Errorf("repeated DeleteDocument() error = %v", err)
	}
}

func TestRecordDeletionIdempotent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.RecordDeletion("p1", model.CategoryProject, "device-a"); err != nil {
			t.Fatalf("RecordDeletion() error = %v", err)
		}
	}

	if got := s.Tombstones(); len(got) != 1 {
		t.Errorf("tombstones = %d, want 1 after repeated recording", len(got))
	}
}

func TestTombstoneRetention(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordDeletion("fresh", model.CategoryImage, "device-a"); err != nil {
		t.Fatalf("RecordDeletion() error = %v", err)
	}
	// Insert one past the retention window directly.
	old := time.Now().Add(-TombstoneRetention - time.Hour).UTC()
	_, err := s.Exec(`
		INSERT INTO tombstones (id, category, deleted_at, deleted_by_device)
		VALUES (?, ?, ?, ?)
	`, "stale", model.CategoryImage, old, "device-a")
	if err != nil {
		t.Fatalf("raw insert error = %v", err)
	}

	tombs := s.Tombstones()
	if len(tombs) != 1 || tombs[0].ID != "fresh" {
		t.Errorf("expected only the fresh tombstone, got %+v", tombs)
	}

	pruned, err := s.PruneTombstones()
	if err != nil {
		t.Fatalf("PruneTombstones() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
}

func TestClearTombstones(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.RecordDeletion(id, model.CategoryEdition, "device-a"); err != nil {
			t.Fatalf("RecordDeletion() error = %v", err)
		}
	}
	if err := s.ClearTombstones([]string{"a", "c"}); err != nil {
		t.Fatalf("ClearTombstones() error = %v", err)
	}

	tombs := s.Tombstones()
	if len(tombs) != 1 || tombs[0].ID != "b" {
		t.Errorf("expected only b to remain, got %+v", tombs)
	}

	// Clearing nothing is a no-op.
	if err := s.ClearTombstones(nil); err != nil {
		t.Errorf("ClearTombstones(nil) error = %v", err)
	}
}

func TestDocumentName(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(model.CategoryCharacter, testDoc("c1", "Mira")); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	if got := s.DocumentName(model.CategoryCharacter, "c1"); got != "Mira" {
		t.Errorf("DocumentName = %q, want Mira", got)
	}
	if got := s.DocumentName(model.CategoryCharacter, "ghost"); got != "ghost" {
		t.Errorf("DocumentName fallback = %q, want ghost", got)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	v, err := s.ManifestVersion()
	if err != nil || v != 0 {
		t.Errorf("initial ManifestVersion = %d, %v; want 0, nil", v, err)
	}

	if err := s.SetManifestVersion(7); err != nil {
		t.Fatalf("SetManifestVersion() error = %v", err)
	}
	if v, _ := s.ManifestVersion(); v != 7 {
		t.Errorf("ManifestVersion = %d, want 7", v)
	}

	at, err := s.LastSyncAt()
	if err != nil || !at.IsZero() {
		t.Errorf("initial LastSyncAt = %v, %v; want zero, nil", at, err)
	}

	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	if err := s.SetLastSyncAt(now); err != nil {
		t.Fatalf("SetLastSyncAt() error = %v", err)
	}
	if at, _ := s.LastSyncAt(); !at.Equal(now) {
		t.Errorf("LastSyncAt = %v, want %v", at, now)
	}
}

func TestPutDocumentsBatch(t *testing.T) {
	s := openTestStore(t)

	docs := []model.Document{
		testDoc("e1", "First Edition"),
		testDoc("e2", "Second Edition"),
	}
	if err := s.PutDocumentsBatch(model.CategoryEdition, docs); err != nil {
		t.Fatalf("PutDocumentsBatch() error = %v", err)
	}

	got, err := s.ListDocuments(model.CategoryEdition)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("documents = %d, want 2", len(got))
	}
}

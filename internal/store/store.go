// Package store implements the local document store on SQLite. It holds
// the creative-project records the manifest is built from, the tombstone
// log for deletions, and a small key-value table for sync bookkeeping.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is a local document store backed by SQLite.
type Store struct {
	*sql.DB
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{sqlDB}
	if err := s.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return s, nil
}

// initialize creates the schema if it does not exist.
func (s *Store) initialize() error {
	_, err := s.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			category   TEXT NOT NULL,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL,
			body       TEXT NOT NULL,
			PRIMARY KEY (category, id)
		);
		CREATE TABLE IF NOT EXISTS tombstones (
			id                TEXT PRIMARY KEY,
			category          TEXT NOT NULL,
			deleted_at        DATETIME NOT NULL,
			deleted_by_device TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// PutDocument inserts or replaces a document.
func (s *Store) PutDocument(category model.Category, doc model.Document) error {
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", category, doc.ID, err)
	}

	_, err = s.Exec(`
		INSERT OR REPLACE INTO documents (category, id, name, updated_at, body)
		VALUES (?, ?, ?, ?, ?)
	`, category, doc.ID, doc.Name, doc.UpdatedAt.UTC(), string(body))
	return err
}

// GetDocument returns the document with the given id, or ErrNotFound.
func (s *Store) GetDocument(category model.Category, id string) (model.Document, error) {
	var doc model.Document
	var body string
	err := s.QueryRow(`
		SELECT id, name, updated_at, body
		FROM documents WHERE category = ? AND id = ?
	`, category, id).Scan(&doc.ID, &doc.Name, &doc.UpdatedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, ErrNotFound
	}
	if err != nil {
		return model.Document{}, err
	}

	if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
		return model.Document{}, fmt.Errorf("corrupt document body %s/%s: %w", category, id, err)
	}
	return doc, nil
}

// ListDocuments returns every document in the category. Rows whose body
// fails to parse are skipped with a warning so one corrupt record cannot
// block a sync round.
func (s *Store) ListDocuments(category model.Category) ([]model.Document, error) {
	rows, err := s.Query(`
		SELECT id, name, updated_at, body
		FROM documents WHERE category = ? ORDER BY id
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.UpdatedAt, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
			logging.Warn("skipping corrupt document",
				logging.Category(string(category)),
				logging.Item(doc.ID),
				logging.Err(err),
			)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document without recording a tombstone.
// Used when applying a deletion that originated on another device.
// Deleting an absent document is not an error.
func (s *Store) DeleteDocument(category model.Category, id string) error {
	_, err := s.Exec(`DELETE FROM documents WHERE category = ? AND id = ?`, category, id)
	return err
}

// RemoveDocument deletes a document and records a tombstone attributing
// the deletion to deviceID. This is the entry point for user-initiated
// deletes.
func (s *Store) RemoveDocument(category model.Category, id, deviceID string) error {
	if err := s.DeleteDocument(category, id); err != nil {
		return err
	}
	return s.RecordDeletion(id, category, deviceID)
}

// DocumentName returns the display name for a record, falling back to the
// raw id when the record is absent or unnamed.
func (s *Store) DocumentName(category model.Category, id string) string {
	var name string
	err := s.QueryRow(`
		SELECT name FROM documents WHERE category = ? AND id = ?
	`, category, id).Scan(&name)
	if err != nil || name == "" {
		return id
	}
	return name
}

// PutDocumentsBatch inserts or replaces documents in one transaction.
func (s *Store) PutDocumentsBatch(category model.Category, docs []model.Document) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO documents (category, id, name, updated_at, body)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		body, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode document %s/%s: %w", category, doc.ID, err)
		}
		if _, err := stmt.Exec(category, doc.ID, doc.Name, doc.UpdatedAt.UTC(), string(body)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Sync bookkeeping keys.
const (
	keyManifestVersion = "manifest_version"
	keyLastSyncAt      = "last_sync_at"
)

// ManifestVersion returns the last persisted local manifest version,
// or 0 if no sync round has completed yet.
func (s *Store) ManifestVersion() (int, error) {
	var v int
	err := s.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, keyManifestVersion).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// SetManifestVersion persists the local manifest version.
func (s *Store) SetManifestVersion(v int) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)
	`, keyManifestVersion, v)
	return err
}

// LastSyncAt returns when the last successful round finished, or the zero
// time if never.
func (s *Store) LastSyncAt() (time.Time, error) {
	var raw string
	err := s.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, keyLastSyncAt).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Malformed bookkeeping is not worth failing a round over.
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastSyncAt persists the completion time of a successful round.
func (s *Store) SetLastSyncAt(t time.Time) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)
	`, keyLastSyncAt, t.UTC().Format(time.RFC3339))
	return err
}

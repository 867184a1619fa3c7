package store

import (
	"time"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/model"
)

// TombstoneRetention is how long deletion records are kept before they
// become eligible for pruning.
const TombstoneRetention = 30 * 24 * time.Hour

// RecordDeletion appends a tombstone for the record unless one already
// exists for that id.
func (s *Store) RecordDeletion(id string, category model.Category, deviceID string) error {
	_, err := s.Exec(`
		INSERT OR IGNORE INTO tombstones (id, category, deleted_at, deleted_by_device)
		VALUES (?, ?, ?, ?)
	`, id, category, time.Now().UTC().Truncate(time.Second), deviceID)
	return err
}

// Tombstones returns all tombstones newer than the retention cutoff.
// Expired and malformed rows are dropped silently; a broken tombstone log
// must never block a sync round.
func (s *Store) Tombstones() []model.Tombstone {
	cutoff := time.Now().Add(-TombstoneRetention)

	rows, err := s.Query(`
		SELECT id, category, deleted_at, deleted_by_device
		FROM tombstones WHERE deleted_at > ?
		ORDER BY deleted_at
	`, cutoff.UTC())
	if err != nil {
		logging.Warn("failed to read tombstones", logging.Err(err))
		return nil
	}
	defer rows.Close()

	var out []model.Tombstone
	for rows.Next() {
		var ts model.Tombstone
		if err := rows.Scan(&ts.ID, &ts.Type, &ts.DeletedAt, &ts.DeletedByDeviceID); err != nil {
			logging.Warn("skipping malformed tombstone", logging.Err(err))
			continue
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		logging.Warn("tombstone scan interrupted", logging.Err(err))
	}
	return out
}

// ClearTombstones removes the given tombstones after their deletions have
// been applied on both sides.
func (s *Store) ClearTombstones(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM tombstones WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PruneTombstones deletes tombstones older than the retention window and
// returns how many were removed.
func (s *Store) PruneTombstones() (int, error) {
	cutoff := time.Now().Add(-TombstoneRetention)
	res, err := s.Exec(`DELETE FROM tombstones WHERE deleted_at <= ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

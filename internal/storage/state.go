// Package storage persists device records as versioned JSON rows in the
// resource_state table.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store holds JSON payloads keyed by (kind, id). The version of a row only
// moves when its payload changes.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns payload and version, or nil and 0 when the row is missing.
func (s *Store) Get(kind, id string) (payload []byte, version int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err = s.db.QueryRow(
		`SELECT payload, version FROM resource_state WHERE kind = ? AND id = ?`,
		kind, id,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(raw), version, nil
}

// Save writes payload unless the stored payload is byte-identical.
// It reports whether a row was inserted or updated.
func (s *Store) Save(kind, id string, payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
		WHERE resource_state.payload != excluded.payload
	`, kind, id, string(payload), time.Now().UTC().Unix())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Trace().Str("kind", kind).Str("id", id).RawJSON("payload", payload).Msg("State stored")
	}
	return n > 0, nil
}

// DeleteMany removes the given ids of one kind in a single transaction and
// returns how many rows existed.
func (s *Store) DeleteMany(kind string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM resource_state WHERE kind = ? AND id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for _, id := range ids {
		res, err := stmt.Exec(kind, id)
		if err != nil {
			return 0, fmt.Errorf("delete %s %s: %w", kind, id, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, tx.Commit()
}

// Clear removes every row of kind, or every row when kind is empty.
func (s *Store) Clear(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.Exec(`DELETE FROM resource_state`)
	} else {
		_, err = s.db.Exec(`DELETE FROM resource_state WHERE kind = ?`, kind)
	}
	return err
}

// GetAll returns every payload of kind keyed by id.
func (s *Store) GetAll(kind string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, payload FROM resource_state WHERE kind = ?`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		payloads[id] = []byte(raw)
	}
	return payloads, rows.Err()
}

// Package ledger provides an append-only history of executed actions and
// server connection changes.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventActionCompleted    EventType = "action_completed"
	EventActionFailed       EventType = "action_failed"
	EventServerConnected    EventType = "server_connected"
	EventServerDisconnected EventType = "server_disconnected"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64          `json:"id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	DeviceID       string         `json:"device_id,omitempty"`
	Source         string         `json:"source,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Record is the input of Append.
type Record struct {
	EventType      EventType
	DeviceID       string
	Source         string
	IdempotencyKey string
	Payload        map[string]any
}

// Ledger provides append-only event logging with deduplication
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger. A completed action with an
// idempotency key is recorded at most once; later duplicates are ignored.
func (l *Ledger) Append(r Record) error {
	var payloadJSON []byte
	var err error

	if r.Payload != nil {
		payloadJSON, err = json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().UnixMilli()

	insertSQL := `INSERT INTO event_ledger (event_type, timestamp, payload, source, idempotency_key, device_id) VALUES (?, ?, ?, ?, ?, ?)`
	if r.EventType == EventActionCompleted && r.IdempotencyKey != "" {
		insertSQL = `INSERT OR IGNORE INTO event_ledger (event_type, timestamp, payload, source, idempotency_key, device_id) VALUES (?, ?, ?, ?, ?, ?)`
	}

	_, err = l.db.Exec(insertSQL, string(r.EventType), now, string(payloadJSON), r.Source, r.IdempotencyKey, r.DeviceID)
	return err
}

// HasCompleted checks if an action with the given idempotency key has completed successfully
func (l *Ledger) HasCompleted(idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false
	}

	var exists int
	err := l.db.QueryRow(`
		SELECT 1 FROM event_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(EventActionCompleted)).Scan(&exists)

	return err == nil && exists == 1
}

// Recent returns the newest entries first.
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, source, idempotency_key, device_id
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByDevice returns the newest entries for one device first.
func (l *Ledger) ByDevice(deviceID string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, source, idempotency_key, device_id
		FROM event_ledger
		WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, source, idempotencyKey, deviceID sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &payloadStr, &source, &idempotencyKey, &deviceID,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Source = source.String
		entry.IdempotencyKey = idempotencyKey.String
		entry.DeviceID = deviceID.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

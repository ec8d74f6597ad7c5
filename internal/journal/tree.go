package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Event is one journal row with its decoded payload and, once loaded
// through Subtree, its children in insertion order.
type Event struct {
	ID        int64
	Timestamp int64
	EventType string
	Fields    map[string]any
	Children  []*Event
}

// LatestProcessRoot finds the most recent process.started event.
func LatestProcessRoot(db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRow(
		`SELECT id FROM events WHERE event_type = ? ORDER BY id DESC LIMIT 1`,
		EventProcessStarted,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no process.started event found")
	}
	return id, err
}

// FindRun returns the run.started event id for runID.
func FindRun(db *sql.DB, runID string) (int64, error) {
	var id int64
	err := db.QueryRow(
		`SELECT id FROM events WHERE event_type = ?
		 AND json_extract(payload, '$.run_id') = ?
		 ORDER BY id DESC LIMIT 1`,
		EventRunStarted, runID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("run %s not found", runID)
	}
	return id, err
}

// Subtree loads the event rootID and all of its descendants. Rows come back
// ordered by id, so a parent is always linked before its children.
func Subtree(db *sql.DB, rootID int64) (*Event, error) {
	rows, err := db.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query subtree: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Event)
	for rows.Next() {
		var (
			ev       Event
			parentID sql.NullInt64
			payload  sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &parentID, &ev.EventType, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			// Payloads are written by LogEvent; a row that fails to decode
			// is still shown, just without fields.
			_ = json.Unmarshal([]byte(payload.String), &ev.Fields)
		}
		byID[ev.ID] = &ev
		if ev.ID == rootID || !parentID.Valid {
			continue
		}
		if parent, ok := byID[parentID.Int64]; ok {
			parent.Children = append(parent.Children, &ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("event %d not found", rootID)
	}
	return root, nil
}

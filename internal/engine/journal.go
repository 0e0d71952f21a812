package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an append-only event log for placement and settlement events.
// It exists for post-hoc inspection of what the loop saw, not for replay.
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS engine_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL,
	event_type TEXT NOT NULL,
	symbol     TEXT,
	payload    TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_engine_events_type ON engine_events(event_type);
`

func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer keeps SQLite lock errors out of the hot path.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Append(evt EventEnvelope) error {
	if j == nil || j.db == nil {
		return nil
	}
	createdAt := evt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO engine_events (event_id, event_type, symbol, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		evt.ID, string(evt.Type), evt.Symbol, string(evt.Payload), createdAt.UnixMilli(),
	)
	return err
}

// Recent returns up to limit journaled events, newest first.
func (j *Journal) Recent(limit int) ([]EventEnvelope, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT event_id, event_type, symbol, payload, created_at FROM engine_events ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventEnvelope
	for rows.Next() {
		var (
			evt     EventEnvelope
			typ     string
			payload string
			ms      int64
		)
		if err := rows.Scan(&evt.ID, &typ, &evt.Symbol, &payload, &ms); err != nil {
			return nil, err
		}
		evt.Type = EventType(typ)
		evt.Payload = []byte(payload)
		evt.CreatedAt = time.UnixMilli(ms)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// TraceStore persists terminated session snapshots so reports survive the
// process. One row per session plus the serialized snapshot; queries stay
// simple because reports always load a whole session.
type TraceStore struct {
	db   *sql.DB
	path string
}

// OpenTraceStore opens (creating if needed) the trace database.
func OpenTraceStore(path string) (*TraceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	ts := &TraceStore{db: db, path: path}
	if err := ts.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("trace store open at %s", path)
	return ts, nil
}

func (ts *TraceStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		binary_path TEXT NOT NULL,
		terminal_reason TEXT NOT NULL,
		turns INTEGER NOT NULL,
		artifacts INTEGER NOT NULL,
		snapshot TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_binary ON sessions(binary_path);
	CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished_at);
	`
	if _, err := ts.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create trace schema: %w", err)
	}
	return nil
}

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID             string
	Objective      string
	BinaryPath     string
	TerminalReason types.TerminalReason
	Turns          int
	Artifacts      int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// SaveSession persists a terminated session.
func (ts *TraceStore) SaveSession(id string, snap Snapshot, reason types.TerminalReason) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	_, err = ts.db.Exec(`
		INSERT INTO sessions (id, objective, binary_path, terminal_reason, turns, artifacts, snapshot, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, snap.Goal.Objective, snap.Goal.Target.BinaryPath, string(reason),
		len(snap.Observations), len(snap.Artifacts), string(blob), snap.Goal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logging.Store("session %s persisted (%s, %d turns)", id, reason, len(snap.Observations))
	return nil
}

// LoadSession returns a persisted snapshot by session id.
func (ts *TraceStore) LoadSession(id string) (Snapshot, types.TerminalReason, error) {
	var blob, reason string
	err := ts.db.QueryRow(`SELECT snapshot, terminal_reason FROM sessions WHERE id = ?`, id).Scan(&blob, &reason)
	if err == sql.ErrNoRows {
		return Snapshot{}, "", fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return Snapshot{}, "", fmt.Errorf("failed to load session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(blob), &snap); err != nil {
		return Snapshot{}, "", fmt.Errorf("corrupt snapshot for session %s: %w", id, err)
	}
	return snap, types.TerminalReason(reason), nil
}

// ListSessions returns the most recent session rows, newest first.
func (ts *TraceStore) ListSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ts.db.Query(`
		SELECT id, objective, binary_path, terminal_reason, turns, artifacts, started_at, finished_at
		FROM sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var reason string
		if err := rows.Scan(&r.ID, &r.Objective, &r.BinaryPath, &reason, &r.Turns, &r.Artifacts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		r.TerminalReason = types.TerminalReason(reason)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (ts *TraceStore) Close() error {
	return ts.db.Close()
}

package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ========================================
// ActionJournal - SQLite record of executed actions
// One row per automation action or wait outcome; queryable over /journal.
// ========================================

const journalSchema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS actions (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    endpoint TEXT NOT NULL,
    selector TEXT,
    success INTEGER NOT NULL,
    element_found INTEGER NOT NULL,
    error_code TEXT,
    message TEXT,
    duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_time ON actions(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_actions_endpoint ON actions(endpoint);
`

// JournalEntry is one recorded action.
type JournalEntry struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"`
	Endpoint     string `json:"endpoint"`
	Selector     string `json:"selector,omitempty"`
	Success      bool   `json:"success"`
	ElementFound bool   `json:"element_found"`
	ErrorCode    string `json:"error_code,omitempty"`
	Message      string `json:"message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// ActionJournal appends action outcomes to a SQLite database. A nil journal
// is valid and records nothing.
type ActionJournal struct {
	mu         sync.Mutex
	db         *sql.DB
	stmtInsert *sql.Stmt
}

// OpenActionJournal opens (creating if needed) the journal database.
func OpenActionJournal(path string) (*ActionJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO actions
		(id, timestamp, endpoint, selector, success, element_found, error_code, message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare journal insert: %w", err)
	}

	return &ActionJournal{db: db, stmtInsert: stmt}, nil
}

// Record appends one action outcome. Journal failures are logged, never
// propagated into the action result.
func (j *ActionJournal) Record(endpoint string, sel *ElementSelector, res ActionResult, duration time.Duration) {
	if j == nil {
		return
	}

	selJSON := ""
	if sel != nil {
		if b, err := json.Marshal(sel); err == nil {
			selJSON = string(b)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.stmtInsert.Exec(
		uuid.New().String(),
		res.Timestamp,
		endpoint,
		selJSON,
		boolToInt(res.Success),
		boolToInt(res.ElementFound),
		res.ErrorCode,
		res.Message,
		duration.Milliseconds(),
	)
	if err != nil {
		LogWarn("journal").Err(err).Str("endpoint", endpoint).Msg("Failed to record action")
	}
}

// Recent returns the latest entries, newest first.
func (j *ActionJournal) Recent(limit int) ([]JournalEntry, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(`SELECT id, timestamp, endpoint, selector, success, element_found,
		error_code, message, duration_ms FROM actions ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query failed: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var success, found int
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Endpoint, &e.Selector,
			&success, &found, &e.ErrorCode, &e.Message, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("journal scan failed: %w", err)
		}
		e.Success = success == 1
		e.ElementFound = found == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (j *ActionJournal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stmtInsert != nil {
		j.stmtInsert.Close()
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

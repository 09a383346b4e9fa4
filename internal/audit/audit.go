// Package audit keeps a best-effort SQLite trail of agent decisions:
// joins handled, greetings fired, triggers matched, switches flipped.
// Message bodies are never stored. Write failures are logged and
// never block dispatch.
package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Log is the audit trail. A nil *Log is a valid disabled trail.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at path.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create index: %w", err)
	}

	return &Log{db: db}, nil
}

// Record appends one decision. Best-effort; safe on a nil receiver.
func (l *Log) Record(kind, groupID, userID, detail string) {
	if l == nil {
		return
	}
	_, err := l.db.Exec(
		`INSERT INTO decisions (ts, kind, group_id, user_id, detail) VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), kind, groupID, userID, detail,
	)
	if err != nil {
		slog.Warn("audit: record failed", "kind", kind, "error", err)
	}
}

// Count returns the number of recorded decisions of one kind, or of
// all kinds when kind is empty.
func (l *Log) Count(kind string) (int, error) {
	if l == nil {
		return 0, nil
	}
	var n int
	var err error
	if kind == "" {
		err = l.db.QueryRow(`SELECT COUNT(*) FROM decisions`).Scan(&n)
	} else {
		err = l.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE kind = ?`, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

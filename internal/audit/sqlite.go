package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tiller/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id     TEXT PRIMARY KEY,
	at     TIMESTAMP NOT NULL,
	kind   TEXT NOT NULL,
	ticker TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_at ON audit_events(at);
`

// SQLiteRecorder appends events to a local SQLite file. It is intentionally
// plain database/sql: the table is a log, not a model.
type SQLiteRecorder struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteRecorder, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit: db path required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) Record(ev Event) {
	_, err := r.db.Exec(
		"INSERT INTO audit_events (id, at, kind, ticker, detail) VALUES (?, ?, ?, ?, ?)",
		ev.ID, ev.At.UTC(), string(ev.Kind), ev.Ticker, ev.Detail,
	)
	if err != nil {
		logger.Errorf("audit: record %s: %v", ev.Kind, err)
	}
}

func (r *SQLiteRecorder) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		"SELECT id, at, kind, ticker, detail FROM audit_events ORDER BY at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var at time.Time
		var kind string
		if err := rows.Scan(&ev.ID, &at, &kind, &ev.Ticker, &ev.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		ev.At = at
		ev.Kind = Kind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error { return r.db.Close() }

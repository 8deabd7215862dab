// file: internal/database/sqlite_store.go
// version: 1.3.1
// guid: d7e9f1a3-b5c7-4d9e-b1f3-a5c7d9e1f3a5

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JeremiahM37/librarr/internal/matcher"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	result_json TEXT NOT NULL DEFAULT '',
	attempts_json TEXT NOT NULL DEFAULT '',
	history_json TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);

CREATE TABLE IF NOT EXISTS library_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	title_key TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL,
	original_path TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	file_format TEXT NOT NULL DEFAULT '',
	media_type TEXT NOT NULL DEFAULT 'ebook',
	source TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_library_source_id ON library_items(source_id);
CREATE INDEX IF NOT EXISTS idx_library_title_key ON library_items(title_key);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	job_id TEXT NOT NULL DEFAULT '',
	library_item_id INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`

// SQLiteStore implements Store on a local SQLite file in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite writes are serialized; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveJob inserts or replaces a job row.
func (s *SQLiteStore) SaveJob(rec *JobRecord) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO jobs
		(id, title, source, kind, status, detail, error, file_path, result_json, attempts_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Source, rec.Kind, rec.Status, rec.Detail, rec.Error,
		rec.FilePath, rec.ResultJSON, rec.AttemptsJSON, rec.HistoryJSON,
		rec.CreatedAt, rec.UpdatedAt)
	return err
}

// GetJob returns a job row, or nil when absent.
func (s *SQLiteStore) GetJob(id string) (*JobRecord, error) {
	row := s.db.QueryRow(`SELECT id, title, source, kind, status, detail, error, file_path,
		result_json, attempts_json, history_json, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListJobs returns jobs most recent first.
func (s *SQLiteStore) ListJobs(limit int) ([]JobRecord, error) {
	q := `SELECT id, title, source, kind, status, detail, error, file_path,
		result_json, attempts_json, history_json, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Source, &rec.Kind, &rec.Status,
			&rec.Detail, &rec.Error, &rec.FilePath, &rec.ResultJSON, &rec.AttemptsJSON,
			&rec.HistoryJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteJob removes a job row.
func (s *SQLiteStore) DeleteJob(id string) error {
	_, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var rec JobRecord
	err := row.Scan(&rec.ID, &rec.Title, &rec.Source, &rec.Kind, &rec.Status,
		&rec.Detail, &rec.Error, &rec.FilePath, &rec.ResultJSON, &rec.AttemptsJSON,
		&rec.HistoryJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AddLibraryItem tracks a completed download.
func (s *SQLiteStore) AddLibraryItem(item *LibraryItem) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO library_items
		(title, title_key, author, file_path, original_path, file_size, file_format, media_type, source, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Title, matcher.Compact(item.Title), item.Author, item.FilePath, item.OriginalPath,
		item.FileSize, item.FileFormat, item.MediaType, item.Source, item.SourceID, item.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasSourceID reports whether a content signature is already tracked.
func (s *SQLiteStore) HasSourceID(sourceID string) (bool, error) {
	if sourceID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(1) FROM library_items WHERE source_id = ?", sourceID).Scan(&n)
	return n > 0, err
}

// FindByTitle returns tracked items whose compacted title matches.
func (s *SQLiteStore) FindByTitle(title string) ([]LibraryItem, error) {
	rows, err := s.db.Query(`SELECT id, title, author, file_path, original_path, file_size,
		file_format, media_type, source, source_id, created_at
		FROM library_items WHERE title_key = ?`, matcher.Compact(title))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LibraryItem
	for rows.Next() {
		var it LibraryItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Author, &it.FilePath, &it.OriginalPath,
			&it.FileSize, &it.FileFormat, &it.MediaType, &it.Source, &it.SourceID, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LogEvent appends to the activity feed.
func (s *SQLiteStore) LogEvent(ev *Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO events (kind, title, detail, job_id, library_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Kind, ev.Title, ev.Detail, ev.JobID, ev.LibraryItemID, ev.CreatedAt)
	return err
}

// RecentEvents returns the newest events.
func (s *SQLiteStore) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, kind, title, detail, job_id, library_item_id, created_at
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Title, &ev.Detail, &ev.JobID, &ev.LibraryItemID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// file: internal/database/store.go
// version: 1.2.0
// guid: c6d8e0f2-a4b6-4c8d-a0e2-f4b6c8d0e2f4

// Package database provides the durable store behind the job registry and
// the library tracker.
package database

import "time"

// JobRecord is the persisted form of a download job. The jobs package owns
// the in-memory representation; this row mirrors every mutation so history
// survives a restart.
type JobRecord struct {
	ID           string
	Title        string
	Source       string
	Kind         string
	Status       string
	Detail       string
	Error        string
	FilePath     string
	ResultJSON   string // originating normalized result
	AttemptsJSON string // failed acquisition attempts
	HistoryJSON  string // status transitions
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LibraryItem is one tracked book in the library.
type LibraryItem struct {
	ID           int64
	Title        string
	Author       string
	FilePath     string
	OriginalPath string
	FileSize     int64
	FileFormat   string
	MediaType    string
	Source       string
	SourceID     string
	CreatedAt    time.Time
}

// Event is one entry in the activity feed.
type Event struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"` // "download", "organize", "import", "skip", "error"
	Title         string    `json:"title"`
	Detail        string    `json:"detail"`
	JobID         string    `json:"job_id,omitempty"`
	LibraryItemID int64     `json:"library_item_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the persistence contract. Implemented by SQLiteStore; tests use
// the in-memory FakeStore.
type Store interface {
	// SaveJob inserts or replaces a job row.
	SaveJob(rec *JobRecord) error
	// GetJob returns a job row, or nil when absent (not an error).
	GetJob(id string) (*JobRecord, error)
	// ListJobs returns jobs most recent first, up to limit (0 = all).
	ListJobs(limit int) ([]JobRecord, error)
	// DeleteJob removes a job row. Missing rows are not an error.
	DeleteJob(id string) error

	// AddLibraryItem tracks a completed download in the library.
	AddLibraryItem(item *LibraryItem) (int64, error)
	// HasSourceID reports whether a content signature is already tracked.
	HasSourceID(sourceID string) (bool, error)
	// FindByTitle returns tracked items with the same compacted title.
	FindByTitle(title string) ([]LibraryItem, error)

	// LogEvent appends to the activity feed.
	LogEvent(ev *Event) error
	// RecentEvents returns the newest events, up to limit.
	RecentEvents(limit int) ([]Event, error)

	Close() error
}

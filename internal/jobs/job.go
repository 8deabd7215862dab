// file: internal/jobs/job.go
// version: 1.3.0
// guid: 0e2a4c6d-7f9b-4c1d-a3b5-8a0c2e4a6c7f

// Package jobs owns the download job lifecycle: creation, status
// transitions, attempt history, and the durable mirror that survives
// restarts.
package jobs

import (
	"time"

	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// allowedTransitions encodes the lifecycle: queued → running → terminal.
// Queued jobs may fail directly (dispatch-time rejection). Terminal states
// transition nowhere.
var allowedTransitions = map[Status]map[Status]bool{
	"":            {StatusQueued: true},
	StatusQueued:  {StatusRunning: true, StatusCompleted: true, StatusFailed: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true},
}

func transitionAllowed(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Transition is one entry in a job's status history.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Attempt records one failed acquisition attempt inside a fallback chain.
// A completed job may carry several: every path tried before the one that
// worked.
type Attempt struct {
	Source string    `json:"source"`
	Site   string    `json:"site,omitempty"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// Job is one download tracked to a terminal state. The registry owns every
// Job; callers see value snapshots and mutate through a Handle only.
type Job struct {
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	Source    string                  `json:"source"`
	Kind      source.Kind             `json:"kind"`
	Status    Status                  `json:"status"`
	Detail    string                  `json:"detail,omitempty"`
	Error     string                  `json:"error,omitempty"`
	FilePath  string                  `json:"file_path,omitempty"`
	Result    search.NormalizedResult `json:"result"`
	Attempts  []Attempt               `json:"attempts,omitempty"`
	History   []Transition            `json:"history,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// maxHistory caps the per-job transition history. Four states cannot
// legitimately produce more, so anything beyond this is a bug leaving
// evidence.
const maxHistory = 25

// file: internal/library/library.go
// version: 1.2.0
// guid: 4a6c8e0b-1d3f-4e5d-a7b9-2e4a6c8e0c1d

// Package library tracks finished downloads and the activity feed, and
// answers duplicate-detection queries for download preflight.
package library

import (
	"log"

	"github.com/JeremiahM37/librarr/internal/database"
)

// Library wraps the store's library and event tables.
type Library struct {
	store database.Store

	// OnEvent, when set, receives every logged activity event. Wired to the
	// realtime hub.
	OnEvent func(database.Event)
}

// New creates a library over the store.
func New(store database.Store) *Library {
	return &Library{store: store}
}

// AddItem tracks a completed download and returns its id.
func (l *Library) AddItem(item *database.LibraryItem) (int64, error) {
	return l.store.AddLibraryItem(item)
}

// HasSourceID reports whether a content signature is already in the library.
func (l *Library) HasSourceID(sourceID string) bool {
	ok, err := l.store.HasSourceID(sourceID)
	if err != nil {
		log.Printf("[ERROR] Duplicate lookup failed for %q: %v", sourceID, err)
		return false
	}
	return ok
}

// FindByTitle returns tracked items with the same compacted title.
func (l *Library) FindByTitle(title string) []database.LibraryItem {
	items, err := l.store.FindByTitle(title)
	if err != nil {
		log.Printf("[ERROR] Title lookup failed for %q: %v", title, err)
		return nil
	}
	return items
}

// LogEvent appends to the activity feed and pushes to the realtime hub.
func (l *Library) LogEvent(kind, title, detail, jobID string, itemID int64) {
	ev := database.Event{Kind: kind, Title: title, Detail: detail, JobID: jobID, LibraryItemID: itemID}
	if err := l.store.LogEvent(&ev); err != nil {
		log.Printf("[ERROR] Failed to log %s event: %v", kind, err)
		return
	}
	if l.OnEvent != nil {
		l.OnEvent(ev)
	}
}

// Recent returns the newest activity events.
func (l *Library) Recent(limit int) []database.Event {
	events, err := l.store.RecentEvents(limit)
	if err != nil {
		log.Printf("[ERROR] Failed to load events: %v", err)
		return nil
	}
	return events
}

// DuplicateMatch describes one way a requested download matches the library.
type DuplicateMatch struct {
	Kind  string `json:"kind"` // "source_id" or "title"
	Value string `json:"value,omitempty"`
	Count int    `json:"count,omitempty"`
}

// DuplicateCheck is the preflight duplicate summary.
type DuplicateCheck struct {
	Duplicate  bool             `json:"duplicate"`
	BySourceID bool             `json:"by_source_id"`
	ByTitle    bool             `json:"by_title"`
	Matches    []DuplicateMatch `json:"matches"`
}

// CheckDuplicate reports whether a title or content signature is already
// tracked.
func (l *Library) CheckDuplicate(title, sourceID string) DuplicateCheck {
	check := DuplicateCheck{Matches: []DuplicateMatch{}}
	if sourceID != "" && l.HasSourceID(sourceID) {
		check.Duplicate = true
		check.BySourceID = true
		check.Matches = append(check.Matches, DuplicateMatch{Kind: "source_id", Value: sourceID})
	}
	if title != "" {
		if rows := l.FindByTitle(title); len(rows) > 0 {
			check.Duplicate = true
			check.ByTitle = true
			check.Matches = append(check.Matches, DuplicateMatch{Kind: "title", Count: len(rows)})
		}
	}
	return check
}

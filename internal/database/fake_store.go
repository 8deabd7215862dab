// file: internal/database/fake_store.go
// version: 1.1.0
// guid: 0a2c4e6f-7b9d-4e1d-a3c5-8e0a2c4e6a8b

package database

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JeremiahM37/librarr/internal/matcher"
)

// FakeStore is the in-memory Store used by tests. Behavior mirrors
// SQLiteStore: GetJob returns nil for missing rows, ListJobs is most recent
// first, title lookups compare compacted titles.
type FakeStore struct {
	mu      sync.Mutex
	jobs    map[string]JobRecord
	items   []LibraryItem
	events  []Event
	nextID  int64
	SaveErr error // when set, SaveJob fails with it
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{jobs: make(map[string]JobRecord), nextID: 1}
}

func (s *FakeStore) SaveJob(rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.jobs[rec.ID] = *rec
	return nil
}

func (s *FakeStore) GetJob(id string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *FakeStore) ListJobs(limit int) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FakeStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *FakeStore) AddLibraryItem(item *LibraryItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID
	s.nextID++
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	s.items = append(s.items, *item)
	return item.ID, nil
}

func (s *FakeStore) HasSourceID(sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *FakeStore) FindByTitle(title string) ([]LibraryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := matcher.Compact(title)
	var out []LibraryItem
	for _, item := range s.items {
		if matcher.Compact(item.Title) == key {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *FakeStore) LogEvent(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = s.nextID
	s.nextID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *FakeStore) RecentEvents(limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FakeStore) Close() error { return nil }

// EventKinds returns the kinds of logged events in order, for test
// assertions.
func (s *FakeStore) EventKinds() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return strings.Join(kinds, ",")
}

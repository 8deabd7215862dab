// file: internal/jobs/registry.go
// version: 1.5.0
// guid: 2a4c6e8f-9b1d-4a3b-c5d7-0c2e4a6c8e9b

package jobs

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/metrics"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Registry is the process-wide job table. All mutations go through it: the
// mutex serializes writes across jobs, persistence mirrors every change, and
// OnUpdate pushes snapshots to the realtime feed. A single orchestration
// flow owns each job's writes; the registry enforces the transition rules
// regardless.
type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	store database.Store
	now   func() time.Time

	// OnUpdate, when set before first use, receives a snapshot after every
	// accepted mutation. Called outside the registry lock.
	OnUpdate func(Job)
}

// NewRegistry creates a registry backed by store and rehydrates prior state.
// Jobs that were queued or running when the previous process died are marked
// failed: nothing is driving them anymore.
func NewRegistry(store database.Store) (*Registry, error) {
	r := &Registry{
		jobs:  make(map[string]*Job),
		store: store,
		now:   time.Now,
	}
	if err := r.rehydrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) rehydrate() error {
	records, err := r.store.ListJobs(0)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}
	stale := 0
	for i := range records {
		job, err := recordToJob(&records[i])
		if err != nil {
			log.Printf("[WARN] Skipping unreadable job row %s: %v", records[i].ID, err)
			continue
		}
		if !job.Status.Terminal() {
			job.History = appendHistory(job.History, Transition{From: job.Status, To: StatusFailed, At: r.now()})
			job.Status = StatusFailed
			job.Error = "interrupted by restart"
			job.UpdatedAt = r.now()
			if err := r.store.SaveJob(jobToRecord(job)); err != nil {
				log.Printf("[ERROR] Failed to persist restart-failed job %s: %v", job.ID, err)
			}
			stale++
		}
		r.jobs[job.ID] = job
	}
	if len(r.jobs) > 0 {
		msg := fmt.Sprintf("Restored %d download jobs from database", len(r.jobs))
		if stale > 0 {
			msg += fmt.Sprintf(" (%d marked as failed due to restart)", stale)
		}
		log.Printf("[INFO] %s", msg)
	}
	return nil
}

// Create registers a new queued job for a normalized result and returns its
// handle. The handle is the only way to mutate the job afterwards.
func (r *Registry) Create(result search.NormalizedResult) (*Handle, error) {
	now := r.now()
	job := &Job{
		ID:        ulid.Make().String(),
		Title:     result.Title,
		Source:    result.Source,
		Kind:      result.Kind,
		Status:    StatusQueued,
		Result:    result,
		History:   []Transition{{From: "", To: StatusQueued, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	snapshot := *job
	r.mu.Unlock()

	if err := r.store.SaveJob(jobToRecord(job)); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	metrics.JobsByStatus.WithLabelValues(string(StatusQueued)).Inc()
	r.notify(snapshot)
	log.Printf("[INFO] Job %s created: %q via %s", job.ID, job.Title, job.Source)
	return &Handle{registry: r, id: job.ID}, nil
}

// Get returns a snapshot of one job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns job snapshots most recent first, up to limit (0 = all).
func (r *Registry) List(limit int) []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delete removes a job. In-flight jobs cannot be deleted; the flow driving
// them still holds the handle.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if ok && !job.Status.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("job %s is %s, not terminal", id, job.Status)
	}
	delete(r.jobs, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.store.DeleteJob(id)
}

// Clear removes all terminal jobs and returns how many were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	var terminal []string
	for id, job := range r.jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, id)
		}
	}
	for _, id := range terminal {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	for _, id := range terminal {
		if err := r.store.DeleteJob(id); err != nil {
			log.Printf("[ERROR] Failed to delete job %s: %v", id, err)
		}
	}
	return len(terminal)
}

// update applies a mutation under the registry lock, persists the new state,
// and notifies. The mutation must not change Status directly; transitions go
// through setStatus so the rules hold.
func (r *Registry) update(id string, mutate func(*Job)) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	mutate(job)
	job.UpdatedAt = r.now()
	snapshot := *job
	r.mu.Unlock()

	if err := r.store.SaveJob(jobToRecord(&snapshot)); err != nil {
		log.Printf("[ERROR] Failed to persist job %s: %v", id, err)
	}
	r.notify(snapshot)
}

// setStatus attempts a status transition, enforcing terminal monotonicity.
// Rejected transitions leave the job untouched.
func (r *Registry) setStatus(id string, to Status, mutate func(*Job)) bool {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	from := job.Status
	if !transitionAllowed(from, to) {
		r.mu.Unlock()
		log.Printf("[WARN] Rejected invalid job status transition %s -> %s for %s", from, to, id)
		return false
	}
	job.Status = to
	job.History = appendHistory(job.History, Transition{From: from, To: to, At: r.now()})
	if mutate != nil {
		mutate(job)
	}
	job.UpdatedAt = r.now()
	snapshot := *job
	r.mu.Unlock()

	metrics.JobsByStatus.WithLabelValues(string(to)).Inc()
	switch to {
	case StatusRunning:
		metrics.JobsInFlight.Inc()
	case StatusCompleted, StatusFailed:
		if from == StatusRunning {
			metrics.JobsInFlight.Dec()
		}
	}

	if err := r.store.SaveJob(jobToRecord(&snapshot)); err != nil {
		log.Printf("[ERROR] Failed to persist job %s: %v", id, err)
	}
	r.notify(snapshot)
	return true
}

func (r *Registry) notify(job Job) {
	if r.OnUpdate != nil {
		r.OnUpdate(job)
	}
}

func appendHistory(history []Transition, t Transition) []Transition {
	history = append(history, t)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	return history
}

func jobToRecord(job *Job) *database.JobRecord {
	resultJSON, _ := json.Marshal(job.Result)
	attemptsJSON, _ := json.Marshal(job.Attempts)
	historyJSON, _ := json.Marshal(job.History)
	return &database.JobRecord{
		ID:           job.ID,
		Title:        job.Title,
		Source:       job.Source,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Detail:       job.Detail,
		Error:        job.Error,
		FilePath:     job.FilePath,
		ResultJSON:   string(resultJSON),
		AttemptsJSON: string(attemptsJSON),
		HistoryJSON:  string(historyJSON),
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func recordToJob(rec *database.JobRecord) (*Job, error) {
	job := &Job{
		ID:        rec.ID,
		Title:     rec.Title,
		Source:    rec.Source,
		Kind:      source.Kind(rec.Kind),
		Status:    Status(rec.Status),
		Detail:    rec.Detail,
		Error:     rec.Error,
		FilePath:  rec.FilePath,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.ResultJSON != "" {
		if err := json.Unmarshal([]byte(rec.ResultJSON), &job.Result); err != nil {
			return nil, fmt.Errorf("bad result payload: %w", err)
		}
	}
	if rec.AttemptsJSON != "" {
		json.Unmarshal([]byte(rec.AttemptsJSON), &job.Attempts)
	}
	if rec.HistoryJSON != "" {
		json.Unmarshal([]byte(rec.HistoryJSON), &job.History)
	}
	return job, nil
}

// file: internal/jobs/handle.go
// version: 1.2.0
// guid: 4c6e8a0b-1d3f-4e5f-a7b9-2c4e6a8e0a1d

package jobs

import (
	"fmt"
	"log"
	"time"
)

// Handle is the single-writer mutation surface for one job. The
// orchestration flow driving a download holds its job's handle exclusively;
// everything else reads snapshots. Handle satisfies source.StatusSink.
type Handle struct {
	registry *Registry
	id       string
}

// ID returns the job's id.
func (h *Handle) ID() string { return h.id }

// Snapshot returns the job's current state.
func (h *Handle) Snapshot() Job {
	job, _ := h.registry.Get(h.id)
	return job
}

// Detail updates the human-readable progress line. Detail changes are
// transient and never gated by the transition rules.
func (h *Handle) Detail(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	h.registry.update(h.id, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		j.Detail = text
	})
}

// Run transitions the job to running.
func (h *Handle) Run() bool {
	return h.registry.setStatus(h.id, StatusRunning, nil)
}

// Complete transitions the job to completed, recording the artifact path.
func (h *Handle) Complete(filePath, detail string) bool {
	ok := h.registry.setStatus(h.id, StatusCompleted, func(j *Job) {
		j.FilePath = filePath
		if detail != "" {
			j.Detail = detail
		}
		j.Error = ""
	})
	if ok {
		log.Printf("[INFO] Job %s completed: %s", h.id, filePath)
	}
	return ok
}

// Fail transitions the job to failed with a reason.
func (h *Handle) Fail(reason string) bool {
	ok := h.registry.setStatus(h.id, StatusFailed, func(j *Job) {
		j.Error = reason
		j.Detail = reason
	})
	if ok {
		log.Printf("[WARN] Job %s failed: %s", h.id, reason)
	}
	return ok
}

// AddAttempt records one failed acquisition attempt in the fallback chain
// without changing status.
func (h *Handle) AddAttempt(sourceName, site, errMsg string) {
	h.registry.update(h.id, func(j *Job) {
		j.Attempts = append(j.Attempts, Attempt{
			Source: sourceName,
			Site:   site,
			Error:  errMsg,
			At:     time.Now(),
		})
	})
}

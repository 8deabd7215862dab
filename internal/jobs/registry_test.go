// file: internal/jobs/registry_test.go
// version: 1.2.0
// guid: 8c0e2a4d-5f7b-4d9b-a1c3-6e8a0c2e4c6f

package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

func newTestRegistry(t *testing.T) (*Registry, *database.FakeStore) {
	t.Helper()
	store := database.NewFakeStore()
	reg, err := NewRegistry(store)
	require.NoError(t, err)
	return reg, store
}

func testResult(title string) search.NormalizedResult {
	return search.NormalizedResult{
		Title:  title,
		Source: "annas",
		Kind:   source.KindDirect,
	}
}

func TestCreatePersistsQueuedJob(t *testing.T) {
	reg, store := newTestRegistry(t)

	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)

	job := h.Snapshot()
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, "Dune", job.Title)
	require.Len(t, job.History, 1)
	assert.Equal(t, Status(""), job.History[0].From)
	assert.Equal(t, StatusQueued, job.History[0].To)

	rec, err := store.GetJob(job.ID)
	require.NoError(t, err)
	require.NotNil(t, rec, "job must be in the store immediately")
	assert.Equal(t, "queued", rec.Status)
}

func TestLifecycleTransitions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)

	assert.True(t, h.Run())
	assert.True(t, h.Complete("/library/Dune.epub", "Added to library"))

	job := h.Snapshot()
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "/library/Dune.epub", job.FilePath)
	assert.Len(t, job.History, 3)
}

func TestQueuedJobMayFailDirectly(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)

	assert.True(t, h.Fail("qBittorrent not configured"))
	job := h.Snapshot()
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "qBittorrent not configured", job.Error)
}

func TestTerminalStatesAreMonotonic(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)
	require.True(t, h.Run())
	require.True(t, h.Fail("download failed"))

	assert.False(t, h.Run(), "failed job cannot re-run")
	assert.False(t, h.Complete("/x.epub", ""), "failed job cannot complete")

	job := h.Snapshot()
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "download failed", job.Error)
	assert.Empty(t, job.FilePath)
}

func TestDetailIgnoredAfterTerminal(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)
	require.True(t, h.Run())
	require.True(t, h.Complete("/x.epub", "Added to library"))

	h.Detail("still going at %d%%", 50)
	assert.Equal(t, "Added to library", h.Snapshot().Detail)
}

func TestAttemptsRecordFallbackChain(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Martial Peak"))
	require.NoError(t, err)
	require.True(t, h.Run())

	h.AddAttempt("annas", "", "no valid epub")
	h.AddAttempt("webnovel", "allnovelfull.net", "first chapter not found")
	require.True(t, h.Complete("/library/Martial Peak.epub", ""))

	job := h.Snapshot()
	require.Len(t, job.Attempts, 2)
	assert.Equal(t, "allnovelfull.net", job.Attempts[1].Site)
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	reg, _ := newTestRegistry(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	reg.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := reg.Create(testResult(title))
		require.NoError(t, err)
	}

	list := reg.List(0)
	require.Len(t, list, 3)
	assert.Equal(t, "Third", list[0].Title)
	assert.Equal(t, "First", list[2].Title)

	assert.Len(t, reg.List(2), 2)
}

func TestDeleteRefusesInFlightJobs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)
	require.True(t, h.Run())

	err = reg.Delete(h.ID())
	require.Error(t, err)

	require.True(t, h.Fail("gone"))
	require.NoError(t, reg.Delete(h.ID()))
	_, ok := reg.Get(h.ID())
	assert.False(t, ok)
}

func TestClearDropsOnlyTerminalJobs(t *testing.T) {
	reg, _ := newTestRegistry(t)

	done, err := reg.Create(testResult("Done"))
	require.NoError(t, err)
	require.True(t, done.Run())
	require.True(t, done.Complete("/x.epub", ""))

	failed, err := reg.Create(testResult("Failed"))
	require.NoError(t, err)
	require.True(t, failed.Fail("nope"))

	active, err := reg.Create(testResult("Active"))
	require.NoError(t, err)
	require.True(t, active.Run())

	assert.Equal(t, 2, reg.Clear())
	list := reg.List(0)
	require.Len(t, list, 1)
	assert.Equal(t, "Active", list[0].Title)
}

func TestRehydrationFailsInterruptedJobs(t *testing.T) {
	store := database.NewFakeStore()
	reg, err := NewRegistry(store)
	require.NoError(t, err)

	running, err := reg.Create(testResult("Running"))
	require.NoError(t, err)
	require.True(t, running.Run())

	queued, err := reg.Create(testResult("Queued"))
	require.NoError(t, err)

	finished, err := reg.Create(testResult("Finished"))
	require.NoError(t, err)
	require.True(t, finished.Run())
	require.True(t, finished.Complete("/x.epub", ""))

	// A fresh registry over the same store simulates a process restart.
	reg2, err := NewRegistry(store)
	require.NoError(t, err)

	for _, id := range []string{running.ID(), queued.ID()} {
		job, ok := reg2.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, job.Status)
		assert.Equal(t, "interrupted by restart", job.Error)
	}

	job, ok := reg2.Get(finished.ID())
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, job.Status)

	// The restart failure is durable, not just in-memory.
	rec, err := store.GetJob(running.ID())
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
}

func TestOnUpdateReceivesSnapshots(t *testing.T) {
	reg, _ := newTestRegistry(t)
	var seen []Status
	reg.OnUpdate = func(j Job) { seen = append(seen, j.Status) }

	h, err := reg.Create(testResult("Dune"))
	require.NoError(t, err)
	require.True(t, h.Run())
	require.True(t, h.Complete("/x.epub", ""))

	assert.Equal(t, []Status{StatusQueued, StatusRunning, StatusCompleted}, seen)
}

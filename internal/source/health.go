// file: internal/source/health.go
// version: 1.0.2
// guid: 2f8a1c3e-5d7b-4f9a-8b0c-3e5d7f9a1c2f

package source

import (
	"sync"
	"time"
)

// HealthInfo is a read-only snapshot of one source's reliability state.
type HealthInfo struct {
	Score            float64 `json:"score"`
	CircuitOpen      bool    `json:"circuit_open"`
	CircuitRetrySec  int     `json:"circuit_retry_in_sec"`
	SearchFailStreak int     `json:"search_fail_streak"`
	LastError        string  `json:"last_error,omitempty"`
}

type healthRow struct {
	searchOK, searchFail     int
	downloadOK, downloadFail int
	searchStreak, dlStreak   int
	circuitOpenUntil         time.Time
	lastError                string
	lastSuccessAt            time.Time
}

// HealthTracker tracks per-source reliability and opens a circuit after
// repeated consecutive search failures so a dead site stops eating the
// aggregation budget.
type HealthTracker struct {
	mu        sync.Mutex
	rows      map[string]*healthRow
	threshold int
	openFor   time.Duration
	now       func() time.Time
}

// NewHealthTracker creates a tracker. threshold is the consecutive-failure
// count that opens the circuit; openFor is how long it stays open.
func NewHealthTracker(threshold int, openFor time.Duration) *HealthTracker {
	if threshold < 1 {
		threshold = 1
	}
	if openFor <= 0 {
		openFor = 5 * time.Minute
	}
	return &HealthTracker{
		rows:      make(map[string]*healthRow),
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

func (t *HealthTracker) row(name string) *healthRow {
	r := t.rows[name]
	if r == nil {
		r = &healthRow{}
		t.rows[name] = r
	}
	return r
}

// CanSearch reports whether the source's circuit is closed.
func (t *HealthTracker) CanSearch(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.now().Before(t.row(name).circuitOpenUntil)
}

// RecordSearchSuccess resets the failure streak and closes the circuit.
func (t *HealthTracker) RecordSearchSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(name)
	r.searchOK++
	r.searchStreak = 0
	r.circuitOpenUntil = time.Time{}
	r.lastSuccessAt = t.now()
}

// RecordSearchFailure bumps the streak and opens the circuit at threshold.
func (t *HealthTracker) RecordSearchFailure(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(name)
	r.searchFail++
	r.searchStreak++
	if err != nil {
		r.lastError = truncate(err.Error(), 400)
	}
	if r.searchStreak >= t.threshold {
		r.circuitOpenUntil = t.now().Add(t.openFor)
	}
}

// RecordDownload records a download outcome. Downloads never open the
// circuit: a failed acquisition says little about search availability.
func (t *HealthTracker) RecordDownload(name string, ok bool, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(name)
	if ok {
		r.downloadOK++
		r.dlStreak = 0
		return
	}
	r.downloadFail++
	r.dlStreak++
	if errMsg != "" {
		r.lastError = truncate(errMsg, 400)
	}
}

// Snapshot returns the health of every tracked source.
func (t *HealthTracker) Snapshot() map[string]HealthInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]HealthInfo, len(t.rows))
	for name, r := range t.rows {
		out[name] = t.info(r)
	}
	return out
}

// Info returns the health of one source.
func (t *HealthTracker) Info(name string) HealthInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info(t.row(name))
}

func (t *HealthTracker) info(r *healthRow) HealthInfo {
	now := t.now()
	open := now.Before(r.circuitOpenUntil)
	retry := 0
	if open {
		retry = int(r.circuitOpenUntil.Sub(now).Seconds())
	}
	return HealthInfo{
		Score:            t.score(r),
		CircuitOpen:      open,
		CircuitRetrySec:  retry,
		SearchFailStreak: r.searchStreak,
		LastError:        r.lastError,
	}
}

func (t *HealthTracker) score(r *healthRow) float64 {
	total := r.searchOK + r.searchFail + r.downloadOK + r.downloadFail
	if total <= 0 {
		return 100.0
	}
	ok := float64(r.searchOK + r.downloadOK)
	fail := float64(r.searchFail + r.downloadFail)
	streak := r.searchStreak
	if r.dlStreak > streak {
		streak = r.dlStreak
	}
	score := (ok/float64(total))*100 - (fail/float64(total))*10 - float64(5*streak)
	if score < 0 {
		score = 0
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

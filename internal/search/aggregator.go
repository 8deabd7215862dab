// file: internal/search/aggregator.go
// version: 1.4.0
// guid: 8c0e2a4b-5d7f-4a9b-c1d3-6e8a0c2e4a5d

package search

import (
	"context"
	"log"
	"time"

	"github.com/JeremiahM37/librarr/internal/metrics"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Aggregator fans a query out to every enabled source for a category,
// bounded per source and overall, and merges the answers into one ranked
// list. A slow or failing source costs its own results only.
type Aggregator struct {
	registry      *source.Registry
	health        *source.HealthTracker
	sourceTimeout time.Duration
	deadline      map[source.Category]time.Duration
}

// NewAggregator creates an aggregator over the sealed registry.
func NewAggregator(reg *source.Registry, health *source.HealthTracker, sourceTimeout, ebookDeadline, audiobookDeadline time.Duration) *Aggregator {
	if sourceTimeout <= 0 {
		sourceTimeout = 15 * time.Second
	}
	if ebookDeadline <= 0 {
		ebookDeadline = 35 * time.Second
	}
	if audiobookDeadline <= 0 {
		audiobookDeadline = 60 * time.Second
	}
	return &Aggregator{
		registry:      reg,
		health:        health,
		sourceTimeout: sourceTimeout,
		deadline: map[source.Category]time.Duration{
			source.CategoryEbook:     ebookDeadline,
			source.CategoryAudiobook: audiobookDeadline,
		},
	}
}

type sourceBatch struct {
	name    string
	results []NormalizedResult
}

// Search runs the aggregation: concurrent per-source searches with
// individual timeouts, immediate normalization, then filter, dedupe, rank.
// Sources still pending when the total deadline closes are simply absent.
func (a *Aggregator) Search(ctx context.Context, query string, category source.Category) []NormalizedResult {
	started := time.Now()
	sources := a.registry.Searchable(category)

	total, ok := a.deadline[category]
	if !ok {
		total = a.deadline[source.CategoryEbook]
	}
	ctx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	batches := make(chan sourceBatch, len(sources))
	launched := 0
	for _, src := range sources {
		if !a.health.CanSearch(src.Name()) {
			info := a.health.Info(src.Name())
			log.Printf("[WARN] Skipping %s: circuit open, retry in %ds", src.Name(), info.CircuitRetrySec)
			metrics.SourceSearches.WithLabelValues(src.Name(), "circuit_open").Inc()
			continue
		}
		launched++
		go a.searchOne(ctx, src, query, batches)
	}

	var merged []NormalizedResult
collect:
	for received := 0; received < launched; received++ {
		select {
		case batch := <-batches:
			merged = append(merged, batch.results...)
		case <-ctx.Done():
			// Pending sources are abandoned; their goroutines drain into
			// the buffered channel and exit.
			log.Printf("[WARN] Search deadline reached for %q with %d/%d sources reporting",
				query, received, launched)
			break collect
		}
	}

	merged = Filter(merged, query)
	merged = Dedupe(merged)
	Rank(merged)

	metrics.SearchDuration.WithLabelValues(string(category)).Observe(time.Since(started).Seconds())
	log.Printf("[INFO] Search %q (%s): %d results from %d sources in %s",
		query, category, len(merged), launched, time.Since(started).Round(time.Millisecond))
	return merged
}

// searchOne runs one source's search under its own timeout, normalizes the
// raw results, and reports the batch. Failures are absorbed: recorded in the
// health tracker, surfaced only as an empty batch.
func (a *Aggregator) searchOne(ctx context.Context, src source.Source, query string, out chan<- sourceBatch) {
	ctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()

	name := src.Name()
	raw, err := src.Search(ctx, query)
	if err != nil {
		outcome := "error"
		if ctx.Err() == context.DeadlineExceeded {
			outcome = "timeout"
		}
		a.health.RecordSearchFailure(name, err)
		metrics.SourceSearches.WithLabelValues(name, outcome).Inc()
		log.Printf("[ERROR] Search error (%s): %v", name, err)
		out <- sourceBatch{name: name}
		return
	}

	a.health.RecordSearchSuccess(name)
	metrics.SourceSearches.WithLabelValues(name, "ok").Inc()
	metrics.SourceSearchResults.WithLabelValues(name).Add(float64(len(raw)))

	orderIdx := a.registry.OrderIndex(name)
	batch := sourceBatch{name: name}
	for _, r := range raw {
		if n, ok := Normalize(r, src, orderIdx); ok {
			batch.results = append(batch.results, n)
		}
	}
	out <- batch
}

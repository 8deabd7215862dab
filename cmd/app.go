// file: cmd/app.go
// version: 1.3.0
// guid: 4e6a8c0e-1f3d-4b5f-a7c9-2c4e6a8c0e2f

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/library"
	"github.com/JeremiahM37/librarr/internal/orchestrator"
	"github.com/JeremiahM37/librarr/internal/pipeline"
	"github.com/JeremiahM37/librarr/internal/realtime"
	"github.com/JeremiahM37/librarr/internal/scrape"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
	"github.com/JeremiahM37/librarr/internal/watcher"
)

// app is the assembled dependency graph behind every command.
type app struct {
	store    database.Store
	sources  *source.Registry
	health   *source.HealthTracker
	agg      *search.Aggregator
	jobs     *jobs.Registry
	orch     *orchestrator.Orchestrator
	lib      *library.Library
	hub      *realtime.EventHub
	pipe     *pipeline.Pipeline
	torrents download.TorrentClient
	importer *watcher.Importer
	fetcher  *source.Fetcher
	cancel   context.CancelFunc
}

// buildApp wires the full application. Call close when done.
func buildApp() (*app, error) {
	cfg := &config.AppConfig
	for _, dir := range []string{
		filepath.Dir(cfg.DatabasePath), cfg.IncomingDir, cfg.EbookDir, cfg.AudiobookDir,
	} {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("cannot create %s: %w", dir, err)
			}
		}
	}

	store, err := database.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fetcher := source.NewFetcher(cfg.Download.ReadTimeout, 4)
	minDirect := cfg.Download.MinDirectBytes

	sources := source.NewRegistry()
	sources.MustRegister(source.NewAnnasSource(fetcher, cfg.IncomingDir, minDirect))
	sources.MustRegister(source.NewGutenbergSource(fetcher, cfg.IncomingDir, minDirect))
	sources.MustRegister(source.NewOpenLibrarySource(fetcher, cfg.IncomingDir, minDirect))
	sources.MustRegister(source.NewStandardEbooksSource(fetcher, cfg.IncomingDir, minDirect))
	sources.MustRegister(source.NewWebNovelSource(fetcher))
	sources.MustRegister(source.NewProwlarrSource(fetcher))
	sources.MustRegister(source.NewLibrivoxSource(fetcher, cfg.IncomingDir))
	sources.MustRegister(source.NewAudioBookBaySource(fetcher))
	sources.MustRegister(source.NewProwlarrAudiobookSource(fetcher))
	sources.Seal()

	health := source.NewHealthTracker(cfg.Health.FailureThreshold, cfg.Health.OpenDuration)
	agg := search.NewAggregator(sources, health,
		cfg.Search.SourceTimeout, cfg.Search.Deadline, cfg.Search.AudiobookDeadline)

	jobsReg, err := jobs.NewRegistry(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	var torrents download.TorrentClient
	if cfg.HasQBittorrent() {
		torrents = download.NewQBittorrentClient()
	}

	lib := library.New(store)
	pipe := pipeline.New(lib, &pipeline.CalibreTarget{}, pipeline.NewKavitaTarget())
	scraper := scrape.New(fetcher, cfg.IncomingDir, cfg.Download.ScrapeTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	orch := orchestrator.New(ctx, sources, health, jobsReg, torrents, scraper, pipe)

	return &app{
		store:    store,
		sources:  sources,
		health:   health,
		agg:      agg,
		jobs:     jobsReg,
		orch:     orch,
		lib:      lib,
		pipe:     pipe,
		torrents: torrents,
		importer: watcher.NewImporter(torrents, pipe, 0),
		fetcher:  fetcher,
		cancel:   cancel,
	}, nil
}

// wireRealtime connects job and activity updates to the SSE hub.
func (a *app) wireRealtime() {
	a.hub = realtime.NewEventHub()
	a.jobs.OnUpdate = func(j jobs.Job) {
		a.hub.SendJobStatus(j.ID, j.Title, string(j.Status), j.Detail, j.Error)
	}
	a.lib.OnEvent = func(ev database.Event) {
		a.hub.SendActivity(ev.Kind, ev.Title, ev.Detail, ev.JobID)
	}
}

func (a *app) close() {
	a.cancel()
	a.orch.Wait()
	a.store.Close()
}

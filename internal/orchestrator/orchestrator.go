// file: internal/orchestrator/orchestrator.go
// version: 1.6.0
// guid: 6e8a0c2d-3f5b-4d7f-a9b1-4c6e8a0c2e3d

// Package orchestrator drives accepted downloads to a terminal state. Each
// dispatched result gets a job and one driving goroutine; the acquisition
// strategy is picked by the result's kind, and scrape downloads fall back
// across candidate sites before giving up.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/epub"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/matcher"
	"github.com/JeremiahM37/librarr/internal/metrics"
	"github.com/JeremiahM37/librarr/internal/pipeline"
	"github.com/JeremiahM37/librarr/internal/scrape"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

// exhaustedMsg is the terminal error when every fallback path failed.
const exhaustedMsg = "no source produced a valid artifact"

// MagnetResolver is implemented by torrent sources whose results carry a
// detail-page path instead of a ready magnet link.
type MagnetResolver interface {
	ResolveMagnet(ctx context.Context, path string) (string, error)
}

// NovelScraper is the scrape dependency; satisfied by *scrape.Scraper.
type NovelScraper interface {
	ScrapeNovel(ctx context.Context, novelURL, title string, sink source.StatusSink) (string, error)
}

// Orchestrator owns the download worker pool.
type Orchestrator struct {
	sources  *source.Registry
	health   *source.HealthTracker
	registry *jobs.Registry
	torrents download.TorrentClient // nil when qBittorrent is not configured
	scraper  NovelScraper
	pipe     *pipeline.Pipeline

	baseCtx context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New creates an orchestrator. ctx bounds the lifetime of every job it will
// ever drive; cancel it on shutdown.
func New(ctx context.Context, sources *source.Registry, health *source.HealthTracker,
	registry *jobs.Registry, torrents download.TorrentClient, scraper NovelScraper,
	pipe *pipeline.Pipeline) *Orchestrator {
	workers := config.AppConfig.Download.Workers
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		sources:  sources,
		health:   health,
		registry: registry,
		torrents: torrents,
		scraper:  scraper,
		pipe:     pipe,
		baseCtx:  ctx,
		sem:      make(chan struct{}, workers),
	}
}

// Dispatch accepts a normalized result, creates its job, and starts driving
// it in the background. Returns the queued job snapshot immediately.
func (o *Orchestrator) Dispatch(result search.NormalizedResult) (jobs.Job, error) {
	h, err := o.registry.Create(result)
	if err != nil {
		return jobs.Job{}, err
	}
	o.wg.Add(1)
	go o.drive(h, result)
	return h.Snapshot(), nil
}

// Wait blocks until every in-flight job goroutine has finished. Used by
// shutdown and tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) drive(h *jobs.Handle, result search.NormalizedResult) {
	defer o.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Job %s panicked: %v\n%s", h.ID(), r, debug.Stack())
			h.Fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	select {
	case o.sem <- struct{}{}:
	case <-o.baseCtx.Done():
		h.Fail("shutting down")
		return
	}
	defer func() { <-o.sem }()

	if !h.Run() {
		return
	}

	var (
		path string
		err  error
	)
	switch result.Kind {
	case source.KindDirect:
		path, err = o.runDirect(h, result)
	case source.KindTorrent:
		err = o.runTorrent(h, result)
		if err == nil {
			metrics.SourceDownloads.WithLabelValues(result.Source, "ok").Inc()
			h.Complete("", "Sent to qBittorrent")
			return
		}
	case source.KindScrape:
		path, err = o.runScrape(h, result)
	default:
		err = fmt.Errorf("unknown acquisition kind %q", result.Kind)
	}

	if err != nil {
		metrics.SourceDownloads.WithLabelValues(result.Source, "error").Inc()
		o.health.RecordDownload(result.Source, false, err.Error())
		h.Fail(err.Error())
		return
	}

	metrics.SourceDownloads.WithLabelValues(result.Source, "ok").Inc()
	o.health.RecordDownload(result.Source, true, "")

	h.Detail("Processing %s...", filepath.Base(path))
	res := o.pipe.Run(o.baseCtx, pipeline.Input{
		Path:      path,
		Title:     result.Title,
		Author:    result.Author,
		MediaType: o.mediaType(result),
		Source:    result.Source,
		SourceID:  search.ContentSignature(result.Payload),
		JobID:     h.ID(),
	})
	switch {
	case res.SkippedDup:
		h.Complete(path, "Already in library, kept existing copy")
	case res.Organized:
		h.Complete(res.OrganizedPath, "Added to library")
	default:
		h.Complete(path, "Downloaded")
	}
}

// mediaType derives the pipeline media type from the producing source's
// categories. Sources serving only the audiobook tab produce audiobooks.
func (o *Orchestrator) mediaType(result search.NormalizedResult) string {
	s := o.sources.Get(result.Source)
	if s != nil && source.ServesCategory(s, source.CategoryAudiobook) &&
		!source.ServesCategory(s, source.CategoryEbook) {
		return "audiobook"
	}
	return "ebook"
}

// runDirect downloads through the producing source's own adapter and
// validates the artifact.
func (o *Orchestrator) runDirect(h *jobs.Handle, result search.NormalizedResult) (string, error) {
	s := o.sources.Get(result.Source)
	if s == nil {
		return "", fmt.Errorf("unknown source %q", result.Source)
	}
	dl, ok := s.(source.Downloader)
	if !ok {
		return "", fmt.Errorf("source %q cannot download directly", result.Source)
	}

	ctx, cancel := context.WithTimeout(o.baseCtx, config.AppConfig.Download.ReadTimeout)
	defer cancel()

	h.Detail("Downloading from %s...", s.Label())
	path, err := dl.Download(ctx, result.Payload, h)
	if err != nil {
		return "", err
	}
	if err := o.validateArtifact(path, config.AppConfig.Download.MinDirectBytes); err != nil {
		return "", err
	}
	return path, nil
}

// runTorrent hands the torrent to qBittorrent. The job is complete once the
// client accepts it; the watcher imports the payload when seeding finishes.
func (o *Orchestrator) runTorrent(h *jobs.Handle, result search.NormalizedResult) error {
	if o.torrents == nil {
		return fmt.Errorf("qBittorrent not configured")
	}

	ctx, cancel := context.WithTimeout(o.baseCtx, time.Minute)
	defer cancel()

	link := result.Payload.String("magnet")
	if link == "" {
		link = result.Payload.String("download_url")
	}
	if link == "" {
		// AudioBookBay results carry a detail-page path; the magnet is built
		// from the info hash found there.
		abbPath := result.Payload.String("abb_url")
		if abbPath == "" {
			return fmt.Errorf("result has no magnet, download URL, or detail page")
		}
		resolver, ok := o.sources.Get(result.Source).(MagnetResolver)
		if !ok {
			return fmt.Errorf("source %q cannot resolve magnet links", result.Source)
		}
		h.Detail("Resolving magnet link...")
		magnet, err := resolver.ResolveMagnet(ctx, abbPath)
		if err != nil {
			return fmt.Errorf("magnet resolution failed: %w", err)
		}
		link = magnet
	}

	cfg := &config.AppConfig.QBittorrent
	savePath, category := cfg.SavePath, cfg.Category
	if o.mediaType(result) == "audiobook" {
		savePath, category = cfg.AudiobookSavePath, cfg.AudiobookCategory
	}

	h.Detail("Sending to qBittorrent...")
	return o.torrents.AddTorrent(ctx, link, savePath, category)
}

// runScrape is the web-novel fallback chain: a pre-made EPUB short-circuit
// first, then up to MaxCandidates scrape sites, each failure recorded as an
// attempt on the job.
func (o *Orchestrator) runScrape(h *jobs.Handle, result search.NormalizedResult) (string, error) {
	if path, ok := o.tryPremadeEpub(h, result); ok {
		return path, nil
	}

	candidates := source.CandidateURLs(result.Payload, config.AppConfig.Download.MaxCandidates)
	if len(candidates) == 0 {
		return "", fmt.Errorf("result has no novel URLs")
	}

	for _, novelURL := range candidates {
		site := scrape.SiteName(novelURL)
		h.Detail("Scraping from %s...", site)
		path, err := o.scraper.ScrapeNovel(o.baseCtx, novelURL, result.Title, h)
		if err == nil {
			err = o.validateArtifact(path, config.AppConfig.Download.MinScrapedBytes)
		}
		if err != nil {
			log.Printf("[WARN] Scrape of %q from %s failed: %v", result.Title, site, err)
			metrics.ScrapeAttempts.WithLabelValues(site, "error").Inc()
			h.AddAttempt(result.Source, site, err.Error())
			continue
		}
		metrics.ScrapeAttempts.WithLabelValues(site, "ok").Inc()
		return path, nil
	}
	return "", fmt.Errorf("%s", exhaustedMsg)
}

// tryPremadeEpub checks whether a finished EPUB of the novel already exists
// on a direct archive before committing to a long chapter scrape.
func (o *Orchestrator) tryPremadeEpub(h *jobs.Handle, result search.NormalizedResult) (string, bool) {
	s := o.sources.Get("annas")
	if s == nil || !s.Enabled() {
		return "", false
	}
	dl, ok := s.(source.Downloader)
	if !ok {
		return "", false
	}

	h.Detail("Checking %s for a pre-made EPUB...", s.Label())
	ctx, cancel := context.WithTimeout(o.baseCtx, config.AppConfig.Search.SourceTimeout)
	hits, err := s.Search(ctx, result.Title)
	cancel()
	if err != nil {
		log.Printf("[DEBUG] Pre-made EPUB lookup failed: %v", err)
		return "", false
	}

	// Hits arrive largest first; only same-work titles qualify.
	tried := 0
	for _, hit := range hits {
		if tried >= config.AppConfig.Download.MaxCandidates {
			break
		}
		if !matcher.TitleMatch(result.Title, hit.Title()) {
			continue
		}
		tried++
		h.Detail("Downloading pre-made EPUB (%s)...", hit.String("size_human"))
		dctx, dcancel := context.WithTimeout(o.baseCtx, config.AppConfig.Download.ReadTimeout)
		path, err := dl.Download(dctx, hit, h)
		dcancel()
		if err == nil {
			err = o.validateArtifact(path, config.AppConfig.Download.MinDirectBytes)
		}
		if err != nil {
			log.Printf("[WARN] Pre-made EPUB attempt failed for %q: %v", result.Title, err)
			h.AddAttempt(s.Name(), "", err.Error())
			continue
		}
		log.Printf("[INFO] Found pre-made EPUB for %q, skipping scrape", result.Title)
		return path, true
	}
	return "", false
}

// validateArtifact checks EPUB artifacts for structural soundness and size.
// Invalid files are removed so they cannot be imported later.
func (o *Orchestrator) validateArtifact(path string, minBytes int64) error {
	if !strings.EqualFold(filepath.Ext(path), ".epub") {
		return nil
	}
	if err := epub.Validate(path, minBytes); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

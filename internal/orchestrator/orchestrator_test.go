// file: internal/orchestrator/orchestrator_test.go
// version: 1.3.0
// guid: 8c0e2a4b-5d7f-4f9b-a1c3-6e8a0c2e4a5c

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/epub"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/library"
	"github.com/JeremiahM37/librarr/internal/pipeline"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

func testConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	config.AppConfig = config.Config{
		EbookDir: t.TempDir(),
		QBittorrent: config.QBittorrentConfig{
			SavePath: "/downloads/books", Category: "librarr",
			AudiobookSavePath: "/downloads/audiobooks", AudiobookCategory: "librarr-audio",
		},
		Search: config.SearchConfig{SourceTimeout: 5 * time.Second},
		Download: config.DownloadConfig{
			ReadTimeout:     10 * time.Second,
			MinDirectBytes:  100,
			MinScrapedBytes: 100,
			MaxCandidates:   3,
			Workers:         2,
		},
	}
}

// writeTestEpub produces a structurally valid EPUB big enough to pass
// validation.
func writeTestEpub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	ch := epub.Chapter{Title: "Chapter 1", HTML: "<p>" + strings.Repeat("words ", 200) + "</p>"}
	if err := epub.Assemble(path, epub.Metadata{Title: "Test Book"}, []epub.Chapter{ch}); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return path
}

type fakeSource struct {
	name     string
	kind     source.Kind
	cats     []source.Category
	results  []source.RawResult
	download func(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error)
	resolve  func(ctx context.Context, path string) (string, error)
}

func (f *fakeSource) Name() string                         { return f.name }
func (f *fakeSource) Label() string                        { return f.name }
func (f *fakeSource) Color() string                        { return "#000000" }
func (f *fakeSource) Kind() source.Kind                    { return f.kind }
func (f *fakeSource) Categories() []source.Category        { return f.cats }
func (f *fakeSource) ConfigFields() []source.ConfigField   { return nil }
func (f *fakeSource) Enabled() bool                        { return true }
func (f *fakeSource) Search(ctx context.Context, query string) ([]source.RawResult, error) {
	return f.results, nil
}
func (f *fakeSource) Download(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
	return f.download(ctx, result, sink)
}
func (f *fakeSource) ResolveMagnet(ctx context.Context, path string) (string, error) {
	return f.resolve(ctx, path)
}

type fakeTorrentClient struct {
	mu    sync.Mutex
	adds  []string
	paths []string
	err   error
}

func (f *fakeTorrentClient) AddTorrent(ctx context.Context, urlOrMagnet, savePath, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.adds = append(f.adds, urlOrMagnet)
	f.paths = append(f.paths, savePath)
	return nil
}
func (f *fakeTorrentClient) Torrents(ctx context.Context, category string) ([]download.Torrent, error) {
	return nil, nil
}
func (f *fakeTorrentClient) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	return nil
}
func (f *fakeTorrentClient) Diagnose(ctx context.Context) download.Diagnosis {
	return download.Diagnosis{Success: true}
}

type fakeScraper struct {
	mu    sync.Mutex
	calls []string
	run   func(novelURL string) (string, error)
}

func (f *fakeScraper) ScrapeNovel(ctx context.Context, novelURL, title string, sink source.StatusSink) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, novelURL)
	f.mu.Unlock()
	return f.run(novelURL)
}

type harness struct {
	sources  *source.Registry
	registry *jobs.Registry
	store    *database.FakeStore
	orch     *Orchestrator
}

func newHarness(t *testing.T, torrents download.TorrentClient, scraper NovelScraper, srcs ...source.Source) *harness {
	t.Helper()
	store := database.NewFakeStore()
	reg, err := jobs.NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	sources := source.NewRegistry()
	for _, s := range srcs {
		sources.MustRegister(s)
	}
	sources.Seal()
	health := source.NewHealthTracker(3, time.Minute)
	pipe := pipeline.New(library.New(store))
	orch := New(context.Background(), sources, health, reg, torrents, scraper, pipe)
	return &harness{sources: sources, registry: reg, store: store, orch: orch}
}

func (h *harness) dispatchAndWait(t *testing.T, result search.NormalizedResult) jobs.Job {
	t.Helper()
	snap, err := h.orch.Dispatch(result)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	h.orch.Wait()
	job, ok := h.registry.Get(snap.ID)
	if !ok {
		t.Fatalf("job %s disappeared", snap.ID)
	}
	return job
}

func TestDirectDownloadCompletes(t *testing.T) {
	testConfig(t)
	dir := t.TempDir()
	src := &fakeSource{
		name: "gutenberg", kind: source.KindDirect, cats: []source.Category{source.CategoryEbook},
		download: func(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
			return writeTestEpub(t, dir, "book.epub"), nil
		},
	}
	h := newHarness(t, nil, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Book", Source: "gutenberg", Kind: source.KindDirect,
		Payload: source.RawResult{"title": "Test Book"},
	})
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if job.FilePath == "" {
		t.Error("completed job has no file path")
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		t.Errorf("artifact missing at %s: %v", job.FilePath, err)
	}
	// Organized under Author/Title in the ebook dir.
	if !strings.HasPrefix(job.FilePath, config.AppConfig.EbookDir) {
		t.Errorf("artifact not organized into ebook dir: %s", job.FilePath)
	}
}

func TestDirectDownloadRejectsTruncatedEpub(t *testing.T) {
	testConfig(t)
	dir := t.TempDir()
	src := &fakeSource{
		name: "gutenberg", kind: source.KindDirect, cats: []source.Category{source.CategoryEbook},
		download: func(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
			path := filepath.Join(dir, "junk.epub")
			os.WriteFile(path, []byte("not a zip"), 0o644)
			return path, nil
		},
	}
	h := newHarness(t, nil, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Book", Source: "gutenberg", Kind: source.KindDirect,
		Payload: source.RawResult{"title": "Test Book"},
	})
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if _, err := os.Stat(filepath.Join(dir, "junk.epub")); !os.IsNotExist(err) {
		t.Error("invalid artifact should have been removed")
	}
}

func TestTorrentHandoff(t *testing.T) {
	testConfig(t)
	qb := &fakeTorrentClient{}
	src := &fakeSource{name: "torrent", kind: source.KindTorrent, cats: []source.Category{source.CategoryEbook}}
	h := newHarness(t, qb, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Book", Source: "torrent", Kind: source.KindTorrent,
		Payload: source.RawResult{"title": "Test Book", "magnet": "magnet:?xt=urn:btih:abc"},
	})
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if len(qb.adds) != 1 || qb.adds[0] != "magnet:?xt=urn:btih:abc" {
		t.Errorf("unexpected AddTorrent calls: %v", qb.adds)
	}
	if qb.paths[0] != "/downloads/books" {
		t.Errorf("ebook torrent got save path %s", qb.paths[0])
	}
}

func TestTorrentMagnetResolution(t *testing.T) {
	testConfig(t)
	qb := &fakeTorrentClient{}
	src := &fakeSource{
		name: "audiobook", kind: source.KindTorrent, cats: []source.Category{source.CategoryAudiobook},
		resolve: func(ctx context.Context, path string) (string, error) {
			return "magnet:?xt=urn:btih:resolved", nil
		},
	}
	h := newHarness(t, qb, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Audiobook", Source: "audiobook", Kind: source.KindTorrent,
		Payload: source.RawResult{"title": "Test Audiobook", "abb_url": "/abss/test-audiobook/"},
	})
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if len(qb.adds) != 1 || qb.adds[0] != "magnet:?xt=urn:btih:resolved" {
		t.Errorf("unexpected AddTorrent calls: %v", qb.adds)
	}
	if qb.paths[0] != "/downloads/audiobooks" {
		t.Errorf("audiobook torrent got save path %s", qb.paths[0])
	}
}

func TestTorrentWithoutClientFails(t *testing.T) {
	testConfig(t)
	src := &fakeSource{name: "torrent", kind: source.KindTorrent, cats: []source.Category{source.CategoryEbook}}
	h := newHarness(t, nil, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Book", Source: "torrent", Kind: source.KindTorrent,
		Payload: source.RawResult{"title": "Test Book", "magnet": "magnet:?xt=urn:btih:abc"},
	})
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "not configured") {
		t.Errorf("unexpected error: %s", job.Error)
	}
}

func TestScrapeFallbackAcrossSites(t *testing.T) {
	testConfig(t)
	dir := t.TempDir()
	scraper := &fakeScraper{
		run: func(novelURL string) (string, error) {
			if strings.Contains(novelURL, "allnovelfull") {
				return "", fmt.Errorf("no chapter links found")
			}
			return writeTestEpub(t, dir, "novel.epub"), nil
		},
	}
	src := &fakeSource{name: "webnovel", kind: source.KindScrape, cats: []source.Category{source.CategoryEbook}}
	h := newHarness(t, nil, scraper, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Fallback Novel", Source: "webnovel", Kind: source.KindScrape,
		Payload: source.RawResult{
			"title":    "Fallback Novel",
			"url":      "https://allnovelfull.net/fallback-novel.html",
			"alt_urls": "https://readnovelfull.com/fallback-novel.html",
		},
	})
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if len(scraper.calls) != 2 {
		t.Fatalf("expected 2 scrape attempts, got %d", len(scraper.calls))
	}
	// The failed first site must survive as attempt history.
	if len(job.Attempts) != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", len(job.Attempts))
	}
	if job.Attempts[0].Site != "allnovelfull.net" {
		t.Errorf("attempt recorded wrong site: %s", job.Attempts[0].Site)
	}
}

func TestScrapeExhaustionFailsJob(t *testing.T) {
	testConfig(t)
	scraper := &fakeScraper{
		run: func(novelURL string) (string, error) {
			return "", fmt.Errorf("no readable chapters")
		},
	}
	src := &fakeSource{name: "webnovel", kind: source.KindScrape, cats: []source.Category{source.CategoryEbook}}
	h := newHarness(t, nil, scraper, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Doomed Novel", Source: "webnovel", Kind: source.KindScrape,
		Payload: source.RawResult{
			"title":    "Doomed Novel",
			"url":      "https://allnovelfull.net/doomed.html",
			"alt_urls": "https://readnovelfull.com/doomed.html\nhttps://novelbin.me/novel-book/doomed",
		},
	})
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != exhaustedMsg {
		t.Errorf("unexpected terminal error: %q", job.Error)
	}
	if len(job.Attempts) != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", len(job.Attempts))
	}
}

func TestScrapePremadeEpubShortCircuit(t *testing.T) {
	testConfig(t)
	dir := t.TempDir()
	annas := &fakeSource{
		name: "annas", kind: source.KindDirect, cats: []source.Category{source.CategoryEbook},
		results: []source.RawResult{
			{"title": "Completely Different Work", "md5": "ffff"},
			{"title": "Premade Novel (Complete)", "md5": "abcd", "size_human": "2.1 MB"},
		},
		download: func(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
			if result.String("md5") != "abcd" {
				return "", fmt.Errorf("wrong candidate downloaded")
			}
			return writeTestEpub(t, dir, "premade.epub"), nil
		},
	}
	scraper := &fakeScraper{
		run: func(novelURL string) (string, error) {
			return "", fmt.Errorf("scraper should not run when a pre-made EPUB exists")
		},
	}
	src := &fakeSource{name: "webnovel", kind: source.KindScrape, cats: []source.Category{source.CategoryEbook}}
	h := newHarness(t, nil, scraper, src, annas)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Premade Novel", Source: "webnovel", Kind: source.KindScrape,
		Payload: source.RawResult{"title": "Premade Novel", "url": "https://allnovelfull.net/premade.html"},
	})
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if len(scraper.calls) != 0 {
		t.Errorf("scraper ran despite pre-made EPUB: %v", scraper.calls)
	}
}

func TestPanicInDriverFailsJob(t *testing.T) {
	testConfig(t)
	src := &fakeSource{
		name: "gutenberg", kind: source.KindDirect, cats: []source.Category{source.CategoryEbook},
		download: func(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
			panic("adapter bug")
		},
	}
	h := newHarness(t, nil, nil, src)

	job := h.dispatchAndWait(t, search.NormalizedResult{
		Title: "Test Book", Source: "gutenberg", Kind: source.KindDirect,
		Payload: source.RawResult{"title": "Test Book"},
	})
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed after panic, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "internal error") {
		t.Errorf("unexpected error: %s", job.Error)
	}
}

// file: internal/server/server_test.go
// version: 1.2.0
// guid: 2c4e6a8d-9f1b-4e3d-a5c7-0a2c4e6a8c0e

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/library"
	"github.com/JeremiahM37/librarr/internal/orchestrator"
	"github.com/JeremiahM37/librarr/internal/pipeline"
	"github.com/JeremiahM37/librarr/internal/realtime"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	name    string
	kind    source.Kind
	enabled bool
	results []source.RawResult
	err     error
}

func (f *fakeSource) Name() string                       { return f.name }
func (f *fakeSource) Label() string                      { return f.name }
func (f *fakeSource) Color() string                      { return "#123456" }
func (f *fakeSource) Kind() source.Kind                  { return f.kind }
func (f *fakeSource) Categories() []source.Category      { return []source.Category{source.CategoryEbook} }
func (f *fakeSource) ConfigFields() []source.ConfigField { return nil }
func (f *fakeSource) Enabled() bool                      { return f.enabled }
func (f *fakeSource) Search(ctx context.Context, query string) ([]source.RawResult, error) {
	return f.results, f.err
}
func (f *fakeSource) Download(ctx context.Context, result source.RawResult, sink source.StatusSink) (string, error) {
	return "", fmt.Errorf("download not available in this test")
}

type fakeTorrentClient struct {
	diagnosis download.Diagnosis
}

func (f *fakeTorrentClient) AddTorrent(ctx context.Context, urlOrMagnet, savePath, category string) error {
	return nil
}
func (f *fakeTorrentClient) Torrents(ctx context.Context, category string) ([]download.Torrent, error) {
	return nil, nil
}
func (f *fakeTorrentClient) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	return nil
}
func (f *fakeTorrentClient) Diagnose(ctx context.Context) download.Diagnosis {
	return f.diagnosis
}

type testEnv struct {
	server *Server
	store  *database.FakeStore
	jobs   *jobs.Registry
	orch   *orchestrator.Orchestrator
	lib    *library.Library
}

func newTestEnv(t *testing.T, torrents download.TorrentClient, srcs ...source.Source) *testEnv {
	t.Helper()
	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	config.AppConfig = config.Config{
		EbookDir: t.TempDir(),
		Search:   config.SearchConfig{SourceTimeout: 2 * time.Second, Deadline: 5 * time.Second, AudiobookDeadline: 5 * time.Second},
		Download: config.DownloadConfig{ReadTimeout: 2 * time.Second, MaxCandidates: 3, Workers: 2},
	}

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
	lib := library.New(store)
	agg := search.NewAggregator(sources, health, 2*time.Second, 5*time.Second, 5*time.Second)
	orch := orchestrator.New(context.Background(), sources, health, reg, torrents, nil, pipeline.New(lib))

	srv := NewServer(Deps{
		Sources:    sources,
		Health:     health,
		Aggregator: agg,
		Jobs:       reg,
		Orch:       orch,
		Library:    lib,
		Hub:        realtime.NewEventHub(),
		Torrents:   torrents,
	})
	return &testEnv{server: srv, store: store, jobs: reg, orch: orch, lib: lib}
}

func (e *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad JSON response: %v\n%s", err, w.Body.String())
	}
	return payload
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{
		name: "gutenberg", kind: source.KindDirect, enabled: true,
		results: []source.RawResult{{"title": "Moby Dick", "author": "Herman Melville"}},
	})

	w := env.request(t, http.MethodGet, "/api/search?q=moby+dick", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	payload := decode(t, w)
	if payload["count"].(float64) != 1 {
		t.Errorf("expected 1 result, got %v", payload["count"])
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.request(t, http.MethodGet, "/api/search", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSearchRejectsUnknownCategory(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.request(t, http.MethodGet, "/api/search?q=x&category=vinyl", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDownloadUnknownSource(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.request(t, http.MethodPost, "/api/download",
		`{"result":{"title":"Book","source":"nope"}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDownloadDispatchesJob(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{name: "gutenberg", kind: source.KindDirect, enabled: true})

	w := env.request(t, http.MethodPost, "/api/download",
		`{"result":{"title":"Moby Dick","source":"gutenberg","payload":{"title":"Moby Dick"}}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	payload := decode(t, w)
	job := payload["job"].(map[string]any)
	if job["id"] == "" {
		t.Error("dispatched job has no id")
	}
	env.orch.Wait()
}

func TestDownloadDuplicatePreflight(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{name: "gutenberg", kind: source.KindDirect, enabled: true})
	env.lib.AddItem(&database.LibraryItem{Title: "Moby Dick", SourceID: "md5abc"})

	body := `{"result":{"title":"Moby Dick","source":"gutenberg","payload":{"title":"Moby Dick","md5":"md5abc"}}}`
	w := env.request(t, http.MethodPost, "/api/download", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	payload := decode(t, w)
	dup := payload["duplicate"].(map[string]any)
	if dup["by_source_id"] != true {
		t.Errorf("expected source-id duplicate, got %v", dup)
	}

	// force bypasses the preflight
	forced := `{"result":{"title":"Moby Dick","source":"gutenberg","payload":{"title":"Moby Dick","md5":"md5abc"}},"force":true}`
	if w := env.request(t, http.MethodPost, "/api/download", forced); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with force, got %d", w.Code)
	}
	env.orch.Wait()
}

func TestDownloadTorrentPreflight(t *testing.T) {
	qb := &fakeTorrentClient{diagnosis: download.Diagnosis{ErrorClass: "unreachable", Error: "connection refused"}}
	env := newTestEnv(t, qb, &fakeSource{name: "torrent", kind: source.KindTorrent, enabled: true})

	w := env.request(t, http.MethodPost, "/api/download",
		`{"result":{"title":"Book","source":"torrent","payload":{"title":"Book","magnet":"magnet:?x"}}}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}

	qb.diagnosis = download.Diagnosis{Success: true, Version: "v5.0"}
	w = env.request(t, http.MethodPost, "/api/download",
		`{"result":{"title":"Book","source":"torrent","payload":{"title":"Book","magnet":"magnet:?x"}}}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with healthy client, got %d: %s", w.Code, w.Body.String())
	}
	env.orch.Wait()
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{name: "gutenberg", kind: source.KindDirect, enabled: true})

	w := env.request(t, http.MethodPost, "/api/download",
		`{"result":{"title":"Book One","source":"gutenberg","payload":{"title":"Book One"}}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("dispatch failed: %d", w.Code)
	}
	env.orch.Wait() // job runs to failed (fake downloader errors)

	payload := decode(t, env.request(t, http.MethodGet, "/api/jobs", ""))
	if payload["count"].(float64) != 1 {
		t.Fatalf("expected 1 job, got %v", payload["count"])
	}
	jobEntry := payload["jobs"].([]any)[0].(map[string]any)
	id := jobEntry["id"].(string)
	if jobEntry["status"] != "failed" {
		t.Errorf("expected failed job, got %v", jobEntry["status"])
	}

	if w := env.request(t, http.MethodGet, "/api/jobs/"+id, ""); w.Code != http.StatusOK {
		t.Errorf("get job returned %d", w.Code)
	}
	if w := env.request(t, http.MethodGet, "/api/jobs/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing job returned %d", w.Code)
	}
	if w := env.request(t, http.MethodDelete, "/api/jobs/"+id, ""); w.Code != http.StatusOK {
		t.Errorf("delete job returned %d", w.Code)
	}
	payload = decode(t, env.request(t, http.MethodGet, "/api/jobs", ""))
	if payload["count"].(float64) != 0 {
		t.Errorf("job not deleted: %v", payload["count"])
	}
}

func TestClearJobs(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{name: "gutenberg", kind: source.KindDirect, enabled: true})
	for i := 0; i < 3; i++ {
		env.request(t, http.MethodPost, "/api/download",
			`{"result":{"title":"Book","source":"gutenberg","payload":{"title":"Book"}}}`)
	}
	env.orch.Wait()

	payload := decode(t, env.request(t, http.MethodPost, "/api/jobs/clear", ""))
	if payload["cleared"].(float64) != 3 {
		t.Errorf("expected 3 cleared, got %v", payload["cleared"])
	}
}

func TestSourcesIncludeHealth(t *testing.T) {
	env := newTestEnv(t, nil, &fakeSource{name: "gutenberg", kind: source.KindDirect, enabled: true})
	payload := decode(t, env.request(t, http.MethodGet, "/api/sources", ""))
	sources := payload["sources"].(map[string]any)
	entry := sources["gutenberg"].(map[string]any)
	if entry["health"] == nil {
		t.Error("source metadata missing health snapshot")
	}
}

func TestActivityEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.lib.LogEvent("download", "Some Book", "Added to library", "", 0)

	payload := decode(t, env.request(t, http.MethodGet, "/api/activity", ""))
	if payload["count"].(float64) != 1 {
		t.Errorf("expected 1 event, got %v", payload["count"])
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.request(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decode(t, w)
	if payload["status"] != "ok" {
		t.Errorf("unexpected status: %v", payload["status"])
	}
}

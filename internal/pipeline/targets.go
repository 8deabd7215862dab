// file: internal/pipeline/targets.go
// version: 1.3.0
// guid: 8e0a2c4d-5f7b-4c9f-a1b3-6c8e0a2c6e7b

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/JeremiahM37/librarr/internal/config"
)

// Target is one library application that receives finished books.
type Target interface {
	Name() string
	Label() string
	Enabled() bool
	// Serves reports whether the target accepts the media type.
	Serves(mediaType string) bool
	// Import hands the organized artifact to the target.
	Import(ctx context.Context, path, title, author string) error
}

var calibreAddedRe = regexp.MustCompile(`Added book ids: (\d+)`)

// CalibreTarget imports ebooks with the calibredb CLI.
type CalibreTarget struct{}

func (t *CalibreTarget) Name() string  { return "calibre" }
func (t *CalibreTarget) Label() string { return "Calibre-Web" }
func (t *CalibreTarget) Enabled() bool {
	return config.AppConfig.Calibre.LibraryPath != ""
}
func (t *CalibreTarget) Serves(mediaType string) bool { return mediaType == "ebook" }

// Import runs calibredb add and fixes up metadata on the new entry.
func (t *CalibreTarget) Import(ctx context.Context, path, title, author string) error {
	cfg := &config.AppConfig.Calibre
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cfg.CalibredbBin, "add", path, "--library-path", cfg.LibraryPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("calibredb add failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	m := calibreAddedRe.FindStringSubmatch(stdout.String())
	if m == nil {
		return fmt.Errorf("calibredb add reported no book id: %s", strings.TrimSpace(stderr.String()))
	}
	bookID := m[1]

	if title != "" || author != "" {
		args := []string{"set_metadata", bookID, "--library-path", cfg.LibraryPath}
		if author != "" {
			args = append(args, "--field", "authors:"+author)
		}
		if title != "" {
			args = append(args, "--field", "title:"+title)
		}
		// Metadata fixup is best-effort; the book is already in.
		if err := exec.CommandContext(ctx, cfg.CalibredbBin, args...).Run(); err != nil {
			log.Printf("[WARN] calibredb set_metadata failed for book %s: %v", bookID, err)
		}
	}
	log.Printf("[INFO] Calibre import: %s (ID: %s)", title, bookID)
	return nil
}

// KavitaTarget triggers a Kavita library scan. The pipeline has already
// copied the file into Kavita's library path.
type KavitaTarget struct {
	http *http.Client

	mu  sync.Mutex
	jwt string
}

// NewKavitaTarget creates the Kavita target.
func NewKavitaTarget() *KavitaTarget {
	return &KavitaTarget{http: &http.Client{Timeout: 10 * time.Second}}
}

func (t *KavitaTarget) Name() string  { return "kavita" }
func (t *KavitaTarget) Label() string { return "Kavita" }
func (t *KavitaTarget) Enabled() bool {
	cfg := &config.AppConfig.Kavita
	return cfg.URL != "" && cfg.APIKey != ""
}
func (t *KavitaTarget) Serves(mediaType string) bool { return mediaType == "ebook" }

func (t *KavitaTarget) authenticate(ctx context.Context, force bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jwt != "" && !force {
		return t.jwt, nil
	}
	cfg := &config.AppConfig.Kavita
	u := cfg.URL + "/api/Plugin/authenticate?" + url.Values{
		"apiKey":     {cfg.APIKey},
		"pluginName": {"librarr"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Kavita auth returned HTTP %d", resp.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", err
	}
	t.jwt = payload.Token
	return t.jwt, nil
}

// Import triggers a library scan, re-authenticating once on 401.
func (t *KavitaTarget) Import(ctx context.Context, path, title, author string) error {
	status, err := t.scan(ctx, false)
	if err == nil && status == http.StatusUnauthorized {
		status, err = t.scan(ctx, true)
	}
	if err != nil {
		return fmt.Errorf("Kavita scan failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("Kavita scan returned HTTP %d", status)
	}
	log.Printf("[INFO] Kavita library scan triggered")
	return nil
}

func (t *KavitaTarget) scan(ctx context.Context, reauth bool) (int, error) {
	token, err := t.authenticate(ctx, reauth)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.AppConfig.Kavita.URL+"/api/Library/scan-all", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// file: internal/watcher/importer.go
// version: 1.2.0
// guid: 6a8c0e2f-3b5d-4f7b-a9c1-4c6e8a0c2e4f

package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/pipeline"
)

// DefaultPollInterval is how often the importer checks qBittorrent.
const DefaultPollInterval = 30 * time.Second

// Importer feeds finished artifacts into the post-processing pipeline: book
// files found in the watch directory, and completed torrents in our
// qBittorrent categories. Torrents are removed from the client after a
// successful import (files kept).
type Importer struct {
	qb       download.TorrentClient // nil when qBittorrent is not configured
	pipe     *pipeline.Pipeline
	interval time.Duration

	imported map[string]bool // torrent hashes already handed to the pipeline
}

// NewImporter creates an importer. Pass 0 for interval to use
// DefaultPollInterval.
func NewImporter(qb download.TorrentClient, pipe *pipeline.Pipeline, interval time.Duration) *Importer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Importer{
		qb:       qb,
		pipe:     pipe,
		interval: interval,
		imported: make(map[string]bool),
	}
}

// Run polls until ctx is canceled. Call from its own goroutine.
func (im *Importer) Run(ctx context.Context) {
	ticker := time.NewTicker(im.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			im.PollOnce(ctx)
		}
	}
}

// PollOnce imports every completed torrent in our categories.
func (im *Importer) PollOnce(ctx context.Context) {
	if im.qb == nil {
		return
	}
	cfg := &config.AppConfig.QBittorrent
	for _, category := range []string{cfg.Category, cfg.AudiobookCategory} {
		if category == "" {
			continue
		}
		torrents, err := im.qb.Torrents(ctx, category)
		if err != nil {
			log.Printf("[WARN] Torrent poll failed for category %s: %v", category, err)
			continue
		}
		for _, t := range torrents {
			if t.Progress < 1.0 || im.imported[t.Hash] {
				continue
			}
			im.importTorrent(ctx, t, category)
		}
	}
}

func (im *Importer) importTorrent(ctx context.Context, t download.Torrent, category string) {
	path := t.ContentPath
	if path == "" {
		path = filepath.Join(t.SavePath, t.Name)
	}
	if _, err := os.Stat(path); err != nil {
		// Remote qBittorrent: its content path is not on our filesystem.
		log.Printf("[WARN] Completed torrent %q has no local payload at %s", t.Name, path)
		im.imported[t.Hash] = true
		return
	}

	mediaType := "ebook"
	if category == config.AppConfig.QBittorrent.AudiobookCategory {
		mediaType = "audiobook"
	}

	log.Printf("[INFO] Importing completed torrent: %s", t.Name)
	title, author := ParseReleaseName(t.Name)
	im.pipe.Run(ctx, pipeline.Input{
		Path:      path,
		Title:     title,
		Author:    author,
		MediaType: mediaType,
		Source:    "torrent",
		SourceID:  t.Hash,
	})
	im.imported[t.Hash] = true

	if err := im.qb.DeleteTorrent(ctx, t.Hash, false); err != nil {
		log.Printf("[WARN] Could not remove imported torrent %s: %v", t.Hash, err)
	}
}

// ScanDir imports every book file sitting in the watch directory. Used as
// the fsnotify debounce callback and once at startup.
func (im *Importer) ScanDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[WARN] Watch dir scan failed: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsBookFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		mediaType := "ebook"
		if IsAudioFile(entry.Name()) {
			mediaType = "audiobook"
		}
		title, author := ParseReleaseName(entry.Name())
		log.Printf("[INFO] Importing from watch dir: %s", entry.Name())
		im.pipe.Run(context.Background(), pipeline.Input{
			Path:      path,
			Title:     title,
			Author:    author,
			MediaType: mediaType,
			Source:    "watch_dir",
		})
	}
}

// ParseReleaseName splits "Author - Title.ext" release names; everything
// else becomes the title as-is.
func ParseReleaseName(name string) (title, author string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimSpace(base)
	if a, t, ok := strings.Cut(base, " - "); ok && a != "" && t != "" {
		return strings.TrimSpace(t), strings.TrimSpace(a)
	}
	return base, ""
}

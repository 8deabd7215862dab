// file: internal/pipeline/pipeline.go
// version: 1.4.0
// guid: 6c8e0a2b-3d5f-4a7d-b9c1-4a6c8e0a4c5f

// Package pipeline post-processes finished downloads: organize into
// Author/Title, import into configured library targets, track in the
// library. Import failures are non-fatal; the artifact exists and is usable
// regardless.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/library"
	"github.com/JeremiahM37/librarr/internal/metrics"
)

var filenameHostile = regexp.MustCompile(`[<>:"/\\|?*]`)
var multiSpace = regexp.MustCompile(`\s+`)

// SanitizeFilename makes a string safe for use as a path component.
func SanitizeFilename(name string) string {
	name = filenameHostile.ReplaceAllString(name, "")
	name = strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	name = strings.Trim(name, ".")
	if len(name) > 80 {
		name = strings.TrimSpace(name[:80])
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

// Input describes one finished download entering the pipeline.
type Input struct {
	Path      string // file, or directory for audiobooks
	Title     string
	Author    string
	MediaType string // "ebook" or "audiobook"
	Source    string
	SourceID  string
	JobID     string
}

// Result reports what the pipeline did.
type Result struct {
	Organized     bool
	OrganizedPath string
	Imports       map[string]bool
	Tracked       bool
	SkippedDup    bool
}

// Pipeline runs organize → import → track.
type Pipeline struct {
	lib     *library.Library
	targets []Target
}

// New creates a pipeline over the library with the given import targets.
// Disabled targets are filtered at run time, not construction time, so
// config changes apply without a rebuild.
func New(lib *library.Library, targets ...Target) *Pipeline {
	return &Pipeline{lib: lib, targets: targets}
}

// Run executes the full pipeline for one artifact. Returns the result; the
// only error case is a duplicate-skip, reported via Result.SkippedDup, and
// filesystem failure during organize, which leaves the artifact at its
// original path and continues.
func (p *Pipeline) Run(ctx context.Context, in Input) Result {
	result := Result{Imports: make(map[string]bool)}

	if in.SourceID != "" && p.lib.HasSourceID(in.SourceID) {
		log.Printf("[INFO] Duplicate skipped: %s (source_id=%s)", in.Title, in.SourceID)
		p.lib.LogEvent("skip", in.Title, fmt.Sprintf("Duplicate (source: %s)", in.Source), in.JobID, 0)
		result.SkippedDup = true
		return result
	}

	originalPath := in.Path
	fileSize := pathSize(in.Path)

	organizedPath := p.organize(in)
	result.OrganizedPath = organizedPath
	result.Organized = organizedPath != originalPath
	if result.Organized {
		p.lib.LogEvent("organize", in.Title, "→ "+organizedPath, in.JobID, 0)
	}

	// Import targets run concurrently; each failure is logged and absorbed.
	var importsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range p.targets {
		if !target.Enabled() || !target.Serves(in.MediaType) {
			continue
		}
		g.Go(func() error {
			if err := target.Import(gctx, organizedPath, in.Title, in.Author); err != nil {
				log.Printf("[ERROR] Target %s failed: %v", target.Name(), err)
				metrics.PipelineImports.WithLabelValues(target.Name(), "error").Inc()
				p.lib.LogEvent("error", in.Title,
					fmt.Sprintf("%s import failed: %v", target.Label(), err), in.JobID, 0)
				return nil
			}
			metrics.PipelineImports.WithLabelValues(target.Name(), "ok").Inc()
			p.lib.LogEvent("import", in.Title, "Imported to "+target.Label(), in.JobID, 0)
			importsMu.Lock()
			result.Imports[target.Name()] = true
			importsMu.Unlock()
			return nil
		})
	}
	g.Wait()

	itemID, err := p.lib.AddItem(&database.LibraryItem{
		Title:        in.Title,
		Author:       in.Author,
		FilePath:     organizedPath,
		OriginalPath: originalPath,
		FileSize:     fileSize,
		FileFormat:   strings.TrimPrefix(strings.ToLower(filepath.Ext(organizedPath)), "."),
		MediaType:    in.MediaType,
		Source:       in.Source,
		SourceID:     in.SourceID,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to track %q in library: %v", in.Title, err)
	} else {
		result.Tracked = true
		p.lib.LogEvent("download", in.Title, fmt.Sprintf("Added to library (%s)", in.Source), in.JobID, itemID)
	}
	return result
}

// organize moves the artifact into Author/Title under the media-type root
// and mirrors ebooks into the Kavita library path when configured. Failures
// fall back to the original path.
func (p *Pipeline) organize(in Input) string {
	cfg := &config.AppConfig
	baseDir := cfg.EbookDir
	if in.MediaType == "audiobook" {
		baseDir = cfg.AudiobookDir
	}
	if baseDir == "" {
		return in.Path
	}
	info, err := os.Stat(in.Path)
	if err != nil {
		log.Printf("[WARN] organize: artifact not found: %s", in.Path)
		return in.Path
	}

	safeAuthor := SanitizeFilename(in.Author)
	safeTitle := SanitizeFilename(in.Title)
	destDir := filepath.Join(baseDir, safeAuthor, safeTitle)

	var destPath string
	if info.IsDir() {
		destPath = destDir
	} else {
		ext := strings.ToLower(filepath.Ext(in.Path))
		if ext == "" {
			ext = ".epub"
		}
		destPath = filepath.Join(destDir, safeTitle+ext)
	}
	if abs, _ := filepath.Abs(in.Path); abs == mustAbs(destPath) {
		return in.Path
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		log.Printf("[ERROR] organize failed: %v", err)
		return in.Path
	}
	if err := movePath(in.Path, destPath); err != nil {
		log.Printf("[ERROR] organize failed: %v", err)
		return in.Path
	}
	log.Printf("[INFO] Organized: %s", destPath)

	// Kavita reads from its own volume; mirror ebooks there.
	if cfg.Kavita.LibraryPath != "" && in.MediaType == "ebook" && !info.IsDir() {
		kavitaPath := filepath.Join(cfg.Kavita.LibraryPath, safeAuthor, safeTitle, filepath.Base(destPath))
		if err := copyFile(destPath, kavitaPath); err != nil {
			log.Printf("[WARN] Kavita copy failed: %v", err)
		} else {
			log.Printf("[INFO] Copied to Kavita library: %s", kavitaPath)
		}
	}
	return destPath
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func pathSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}

// movePath renames, falling back to copy+remove across filesystems.
func movePath(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

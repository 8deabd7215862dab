// file: internal/source/librivox.go
// version: 1.2.0
// guid: 4a6c8e0f-1b3d-4c5e-a7b9-2c4e6a8c0e1b

package source

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const librivoxAPIURL = "https://librivox.org/api/feed/audiobooks"

// LibrivoxSource searches Librivox for public domain audiobooks. Downloads
// arrive as a zip of MP3s that is extracted in place.
type LibrivoxSource struct {
	fetcher     *Fetcher
	incomingDir string
}

// NewLibrivoxSource creates the Librivox adapter.
func NewLibrivoxSource(f *Fetcher, incomingDir string) *LibrivoxSource {
	return &LibrivoxSource{fetcher: f, incomingDir: incomingDir}
}

func (s *LibrivoxSource) Name() string                { return "librivox" }
func (s *LibrivoxSource) Label() string               { return "Librivox" }
func (s *LibrivoxSource) Color() string               { return "#00b894" }
func (s *LibrivoxSource) Kind() Kind                  { return KindDirect }
func (s *LibrivoxSource) Categories() []Category      { return []Category{CategoryAudiobook} }
func (s *LibrivoxSource) ConfigFields() []ConfigField { return nil }
func (s *LibrivoxSource) Enabled() bool               { return true }

type librivoxBook struct {
	ID      json.Number `json:"id"`
	Title   string      `json:"title"`
	Authors []struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"authors"`
	TotalTime      string `json:"totaltime"`
	NumSections    string `json:"num_sections"`
	URLZipFile     string `json:"url_zip_file"`
	URLLibrivox    string `json:"url_librivox"`
	CoverThumbnail string `json:"coverart_thumbnail"`
	CoverJPG       string `json:"coverart_jpg"`
}

// Search queries the Librivox API. There is no general search, so title is
// tried first and author second.
func (s *LibrivoxSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	var lastErr error
	for _, field := range []string{"title", "author"} {
		body, err := s.fetcher.GetString(ctx, librivoxAPIURL, url.Values{
			field:      {query},
			"format":   {"json"},
			"extended": {"1"},
			"coverart": {"1"},
			"limit":    {"15"},
		}, nil)
		if err != nil {
			lastErr = err
			continue
		}
		var payload struct {
			Books []librivoxBook `json:"books"`
		}
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			lastErr = fmt.Errorf("bad Librivox response: %w", err)
			continue
		}

		var results []RawResult
		for _, book := range payload.Books {
			if book.URLZipFile == "" {
				continue
			}
			var authorParts []string
			for _, a := range book.Authors {
				if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
					authorParts = append(authorParts, name)
				}
			}
			sizeHuman := book.TotalTime
			if sizeHuman == "" {
				sizeHuman = "Public Domain"
			}
			cover := book.CoverThumbnail
			if cover == "" {
				cover = book.CoverJPG
			}
			results = append(results, RawResult{
				"title":        book.Title,
				"author":       strings.Join(authorParts, ", "),
				"source_id":    "librivox-" + book.ID.String(),
				"zip_url":      book.URLZipFile,
				"librivox_url": book.URLLibrivox,
				"cover_url":    cover,
				"size_human":   sizeHuman,
				"chapters":     book.NumSections,
				"verified":     true,
			})
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, lastErr
}

// Download fetches the audiobook zip into a per-title incoming directory and
// extracts the MP3s. Returns the extracted directory.
func (s *LibrivoxSource) Download(ctx context.Context, result RawResult, sink StatusSink) (string, error) {
	zipURL := result.String("zip_url")
	if zipURL == "" {
		return "", fmt.Errorf("result has no download URL")
	}
	title := SafeFilename(result.Title(), "audiobook")
	destDir := filepath.Join(s.incomingDir, title)

	sink.Detail("Downloading audiobook from Librivox...")
	zipPath, size, err := s.fetcher.DownloadToFile(ctx, zipURL, destDir, title+".zip", 1)
	if err != nil {
		return "", err
	}

	sink.Detail("Extracting MP3 files...")
	if err := extractZip(zipPath, destDir); err != nil {
		// A bad zip is still playable in some players; keep it as-is.
		log.Printf("[WARN] Librivox: bad zip, keeping as-is: %s (%v)", zipPath, err)
		return destDir, nil
	}
	os.Remove(zipPath)

	sink.Detail("Done (%s)", HumanSize(size))
	return destDir, nil
}

// extractZip unpacks archive into destDir, refusing entries that escape it.
func extractZip(archive, destDir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// file: internal/source/openlibrary.go
// version: 1.2.0
// guid: 0c2e4a6b-7d9f-4e1a-b3c5-8f0a2c4e6d7f

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
)

const (
	openLibrarySearchURL = "https://openlibrary.org/search.json"
	iaDownloadURL        = "https://archive.org/download"
	iaMetadataURL        = "https://archive.org/metadata"
)

// OpenLibrarySource searches Open Library and downloads public domain EPUBs
// from the Internet Archive.
type OpenLibrarySource struct {
	fetcher     *Fetcher
	incomingDir string
	minBytes    int64
}

// NewOpenLibrarySource creates the Open Library adapter.
func NewOpenLibrarySource(f *Fetcher, incomingDir string, minBytes int64) *OpenLibrarySource {
	return &OpenLibrarySource{fetcher: f, incomingDir: incomingDir, minBytes: minBytes}
}

func (s *OpenLibrarySource) Name() string                { return "openlibrary" }
func (s *OpenLibrarySource) Label() string               { return "Open Library" }
func (s *OpenLibrarySource) Color() string               { return "#e67e22" }
func (s *OpenLibrarySource) Kind() Kind                  { return KindDirect }
func (s *OpenLibrarySource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *OpenLibrarySource) ConfigFields() []ConfigField { return nil }
func (s *OpenLibrarySource) Enabled() bool               { return true }

// Search queries search.json, keeping only public-domain docs with Internet
// Archive editions we can actually fetch.
func (s *OpenLibrarySource) Search(ctx context.Context, query string) ([]RawResult, error) {
	body, err := s.fetcher.GetString(ctx, openLibrarySearchURL, url.Values{
		"q":      {query},
		"fields": {"key,title,author_name,ebook_access,ia,first_publish_year,cover_i"},
		"limit":  {"15"},
	}, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Docs []struct {
			Key         string   `json:"key"`
			Title       string   `json:"title"`
			AuthorName  []string `json:"author_name"`
			EbookAccess string   `json:"ebook_access"`
			IA          []string `json:"ia"`
			FirstYear   int      `json:"first_publish_year"`
			CoverID     int64    `json:"cover_i"`
		} `json:"docs"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("bad Open Library response: %w", err)
	}

	var results []RawResult
	for _, doc := range payload.Docs {
		if doc.EbookAccess != "public" || len(doc.IA) == 0 {
			continue
		}
		author := ""
		if len(doc.AuthorName) > 0 {
			author = doc.AuthorName[0]
		}
		coverURL := ""
		if doc.CoverID != 0 {
			coverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", doc.CoverID)
		}
		sizeHuman := "Public Domain"
		if doc.FirstYear != 0 {
			sizeHuman = fmt.Sprintf("Public Domain (%d)", doc.FirstYear)
		}
		ia := doc.IA
		if len(ia) > 5 {
			ia = ia[:5]
		}
		results = append(results, RawResult{
			"title":      doc.Title,
			"author":     author,
			"source_id":  "ol-" + doc.Key,
			"ia_ids":     strings.Join(ia, ","),
			"cover_url":  coverURL,
			"size_human": sizeHuman,
			"verified":   true,
		})
	}
	return results, nil
}

// findEpubURL asks the IA metadata API for an EPUB in the item, falling back
// to the conventional URL pattern.
func (s *OpenLibrarySource) findEpubURL(ctx context.Context, iaID string) string {
	body, err := s.fetcher.GetString(ctx, iaMetadataURL+"/"+iaID+"/files", nil, nil)
	if err == nil {
		var payload struct {
			Result []struct {
				Name string `json:"name"`
			} `json:"result"`
		}
		if json.Unmarshal([]byte(body), &payload) == nil {
			for _, f := range payload.Result {
				if strings.HasSuffix(strings.ToLower(f.Name), ".epub") {
					return iaDownloadURL + "/" + iaID + "/" + f.Name
				}
			}
		}
	}
	return iaDownloadURL + "/" + iaID + "/" + iaID + ".epub"
}

// Download tries each Internet Archive edition in turn until one yields a
// real EPUB.
func (s *OpenLibrarySource) Download(ctx context.Context, result RawResult, sink StatusSink) (string, error) {
	iaIDs := strings.Split(result.String("ia_ids"), ",")
	if len(iaIDs) == 0 || iaIDs[0] == "" {
		return "", fmt.Errorf("result has no Internet Archive identifier")
	}

	sink.Detail("Finding EPUB on Internet Archive...")
	name := SafeFilename(result.Title(), "book") + ".epub"
	var lastErr error
	for _, iaID := range iaIDs {
		epubURL := s.findEpubURL(ctx, iaID)
		sink.Detail("Downloading from Internet Archive...")
		path, size, err := s.fetcher.DownloadToFile(ctx, epubURL, s.incomingDir, name, s.minBytes)
		if err != nil {
			log.Printf("[WARN] Open Library: download failed for %s: %v", iaID, err)
			lastErr = err
			continue
		}
		sink.Detail("Done (%s)", HumanSize(size))
		return path, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("no downloadable EPUB across available editions: %w", lastErr)
	}
	return "", fmt.Errorf("no downloadable EPUB across available editions")
}

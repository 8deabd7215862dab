// file: internal/source/standardebooks.go
// version: 1.1.0
// guid: 2e4a6c8d-9f1b-4a3c-b5d7-0a2c4e6a8d9f

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/JeremiahM37/librarr/internal/matcher"
)

const standardEbooksOPDS = "https://standardebooks.org/opds/all"

// StandardEbooksSource searches the Standard Ebooks OPDS catalog. The feed
// has no query endpoint, so the whole catalog is fetched and filtered by
// lexical overlap with the query.
type StandardEbooksSource struct {
	fetcher     *Fetcher
	incomingDir string
	minBytes    int64
}

// NewStandardEbooksSource creates the Standard Ebooks adapter.
func NewStandardEbooksSource(f *Fetcher, incomingDir string, minBytes int64) *StandardEbooksSource {
	return &StandardEbooksSource{fetcher: f, incomingDir: incomingDir, minBytes: minBytes}
}

func (s *StandardEbooksSource) Name() string                { return "standardebooks" }
func (s *StandardEbooksSource) Label() string               { return "Standard Ebooks" }
func (s *StandardEbooksSource) Color() string               { return "#dc2626" }
func (s *StandardEbooksSource) Kind() Kind                  { return KindDirect }
func (s *StandardEbooksSource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *StandardEbooksSource) ConfigFields() []ConfigField { return nil }
func (s *StandardEbooksSource) Enabled() bool               { return true }

type opdsFeed struct {
	Entries []opdsEntry `xml:"entry"`
}

type opdsEntry struct {
	ID     string `xml:"id"`
	Title  string `xml:"title"`
	Author struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []opdsLink `xml:"link"`
}

type opdsLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// Search fetches the OPDS Atom feed and keeps entries overlapping the query.
func (s *StandardEbooksSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	body, err := s.fetcher.GetString(ctx, standardEbooksOPDS, nil, nil)
	if err != nil {
		return nil, err
	}
	var feed opdsFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, fmt.Errorf("bad OPDS feed: %w", err)
	}

	var results []RawResult
	for _, entry := range feed.Entries {
		if len(results) >= 15 {
			break
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" || entry.ID == "" {
			continue
		}
		if !matcher.Relevant(query, title+" "+entry.Author.Name) {
			continue
		}

		// IDs look like https://standardebooks.org/ebooks/author/title; the
		// EPUB lives at .../downloads/author_title.epub.
		seURL := entry.ID
		if !strings.HasPrefix(seURL, "http") {
			seURL = "https://standardebooks.org" + seURL
		}
		path := strings.TrimPrefix(seURL, "https://standardebooks.org/ebooks/")
		epubURL := fmt.Sprintf("https://standardebooks.org/ebooks/%s/downloads/%s.epub",
			path, strings.ReplaceAll(path, "/", "_"))

		coverURL := ""
		for _, l := range entry.Links {
			if l.Rel == "http://opds-spec.org/image" {
				coverURL = l.Href
				break
			}
		}

		results = append(results, RawResult{
			"title":      title,
			"author":     strings.TrimSpace(entry.Author.Name),
			"source_id":  "standardebooks-" + path,
			"epub_url":   epubURL,
			"cover_url":  coverURL,
			"size_human": "~1 MB",
			"verified":   true,
		})
	}
	return results, nil
}

// Download fetches the EPUB into the incoming directory.
func (s *StandardEbooksSource) Download(ctx context.Context, result RawResult, sink StatusSink) (string, error) {
	epubURL := result.String("epub_url")
	if epubURL == "" {
		return "", fmt.Errorf("result has no download URL")
	}
	sink.Detail("Downloading from Standard Ebooks...")
	name := SafeFilename(result.Title(), "book") + ".epub"
	path, size, err := s.fetcher.DownloadToFile(ctx, epubURL, s.incomingDir, name, s.minBytes)
	if err != nil {
		return "", err
	}
	sink.Detail("Downloaded (%s)", HumanSize(size))
	return path, nil
}

// file: internal/source/gutenberg.go
// version: 1.1.0
// guid: 8a0c2e4f-5b7d-4c9e-a1b3-6d8f0a2c4e5b

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const gutendexURL = "https://gutendex.com/books"

// GutenbergSource searches Project Gutenberg through the Gutendex API.
// Public domain, always enabled.
type GutenbergSource struct {
	fetcher     *Fetcher
	incomingDir string
	minBytes    int64
}

// NewGutenbergSource creates the Gutenberg adapter.
func NewGutenbergSource(f *Fetcher, incomingDir string, minBytes int64) *GutenbergSource {
	return &GutenbergSource{fetcher: f, incomingDir: incomingDir, minBytes: minBytes}
}

func (s *GutenbergSource) Name() string                { return "gutenberg" }
func (s *GutenbergSource) Label() string               { return "Gutenberg" }
func (s *GutenbergSource) Color() string               { return "#e84393" }
func (s *GutenbergSource) Kind() Kind                  { return KindDirect }
func (s *GutenbergSource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *GutenbergSource) ConfigFields() []ConfigField { return nil }
func (s *GutenbergSource) Enabled() bool               { return true }

type gutendexBook struct {
	ID      int               `json:"id"`
	Title   string            `json:"title"`
	Authors []gutendexAuthor  `json:"authors"`
	Formats map[string]string `json:"formats"`
	DLCount int64             `json:"download_count"`
}

type gutendexAuthor struct {
	Name string `json:"name"`
}

// Search queries Gutendex for English EPUBs.
func (s *GutenbergSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	body, err := s.fetcher.GetString(ctx, gutendexURL, url.Values{
		"search":    {query},
		"languages": {"en"},
		"mime_type": {"application/epub+zip"},
	}, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []gutendexBook `json:"results"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("bad Gutendex response: %w", err)
	}

	var results []RawResult
	for _, book := range payload.Results {
		if len(results) >= 10 {
			break
		}
		epubURL := book.Formats["application/epub+zip"]
		if epubURL == "" {
			continue
		}
		author := ""
		if len(book.Authors) > 0 {
			author = book.Authors[0].Name
			// Gutenberg uses "Last, First" — flip it.
			if last, first, ok := strings.Cut(author, ", "); ok {
				author = first + " " + last
			}
		}
		results = append(results, RawResult{
			"title":          book.Title,
			"author":         author,
			"source_id":      fmt.Sprintf("gutenberg-%d", book.ID),
			"epub_url":       epubURL,
			"cover_url":      book.Formats["image/jpeg"],
			"size_human":     "Public Domain",
			"download_count": book.DLCount,
			"verified":       true,
		})
	}
	return results, nil
}

// Download fetches the EPUB into the incoming directory.
func (s *GutenbergSource) Download(ctx context.Context, result RawResult, sink StatusSink) (string, error) {
	epubURL := result.String("epub_url")
	if epubURL == "" {
		return "", fmt.Errorf("result has no EPUB URL")
	}
	sink.Detail("Downloading from Project Gutenberg...")
	name := SafeFilename(result.Title(), "book") + ".epub"
	path, size, err := s.fetcher.DownloadToFile(ctx, epubURL, s.incomingDir, name, s.minBytes)
	if err != nil {
		return "", err
	}
	sink.Detail("Done (%s)", HumanSize(size))
	return path, nil
}

// file: internal/source/prowlarr.go
// version: 1.3.0
// guid: 6c8e0a2b-3d5f-4e7a-b9c1-4e6a8c0e2a3d

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JeremiahM37/librarr/internal/config"
)

var prowlarrConfigFields = []ConfigField{
	{Key: "prowlarr_url", Label: "Prowlarr URL", Type: "url", Required: true},
	{Key: "prowlarr_api_key", Label: "API Key", Type: "password", Required: true},
}

type prowlarrItem struct {
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Indexer     string `json:"indexer"`
	DownloadURL string `json:"downloadUrl"`
	MagnetURL   string `json:"magnetUrl"`
	InfoHash    string `json:"infoHash"`
	GUID        string `json:"guid"`
}

func (s *ProwlarrSource) searchAPI(ctx context.Context, params url.Values) ([]prowlarrItem, error) {
	body, err := s.fetcher.GetString(ctx, s.cfg().URL+"/api/v1/search", params,
		map[string]string{"X-Api-Key": s.cfg().APIKey})
	if err != nil {
		return nil, err
	}
	var items []prowlarrItem
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("bad Prowlarr response: %w", err)
	}
	return items, nil
}

func prowlarrResult(item prowlarrItem) RawResult {
	return RawResult{
		"title":        item.Title,
		"size":         item.Size,
		"size_human":   HumanSize(item.Size),
		"seeders":      item.Seeders,
		"leechers":     item.Leechers,
		"indexer":      item.Indexer,
		"download_url": item.DownloadURL,
		"magnet_url":   item.MagnetURL,
		"info_hash":    item.InfoHash,
		"source_id":    item.InfoHash,
		"guid":         item.GUID,
	}
}

// ProwlarrSource searches ebook torrent indexers through a Prowlarr proxy.
// Enabled only when a URL and API key are configured.
type ProwlarrSource struct {
	fetcher *Fetcher
}

// NewProwlarrSource creates the ebook Prowlarr adapter.
func NewProwlarrSource(f *Fetcher) *ProwlarrSource {
	return &ProwlarrSource{fetcher: f}
}

func (s *ProwlarrSource) cfg() *config.ProwlarrConfig { return &config.AppConfig.Prowlarr }

func (s *ProwlarrSource) Name() string                { return "torrent" }
func (s *ProwlarrSource) Label() string               { return "Prowlarr" }
func (s *ProwlarrSource) Color() string               { return "#e17055" }
func (s *ProwlarrSource) Kind() Kind                  { return KindTorrent }
func (s *ProwlarrSource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *ProwlarrSource) ConfigFields() []ConfigField { return prowlarrConfigFields }
func (s *ProwlarrSource) Enabled() bool               { return config.AppConfig.HasProwlarr() }

// Search queries the ebook categories (7000 Books, 7020 Ebooks).
func (s *ProwlarrSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	items, err := s.searchAPI(ctx, url.Values{
		"query":      {query},
		"categories": {"7000", "7020"},
		"type":       {"search"},
		"limit":      {"50"},
	})
	if err != nil {
		return nil, err
	}
	results := make([]RawResult, 0, len(items))
	for _, item := range items {
		results = append(results, prowlarrResult(item))
	}
	return results, nil
}

// ProwlarrAudiobookSource is the audiobook-tab variant of the Prowlarr
// adapter. Audiobook indexer categorization is sloppy, so it runs the 3030
// category search plus a keyword pass and merges by info hash.
type ProwlarrAudiobookSource struct {
	ProwlarrSource
}

// NewProwlarrAudiobookSource creates the audiobook Prowlarr adapter.
func NewProwlarrAudiobookSource(f *Fetcher) *ProwlarrAudiobookSource {
	return &ProwlarrAudiobookSource{ProwlarrSource{fetcher: f}}
}

func (s *ProwlarrAudiobookSource) Name() string           { return "prowlarr_audiobook" }
func (s *ProwlarrAudiobookSource) Color() string          { return "#fd79a8" }
func (s *ProwlarrAudiobookSource) Categories() []Category { return []Category{CategoryAudiobook} }

// Search merges the audiobook-category search with a keyword search.
func (s *ProwlarrAudiobookSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	searches := []url.Values{
		{"query": {query}, "categories": {"3030"}, "type": {"search"}, "limit": {"50"}},
		{"query": {query + " audiobook"}, "type": {"search"}, "limit": {"30"}},
	}
	seen := make(map[string]bool)
	var results []RawResult
	var lastErr error
	for _, params := range searches {
		items, err := s.searchAPI(ctx, params)
		if err != nil {
			lastErr = err
			continue
		}
		for _, item := range items {
			if item.InfoHash != "" {
				if seen[item.InfoHash] {
					continue
				}
				seen[item.InfoHash] = true
			}
			results = append(results, prowlarrResult(item))
		}
	}
	if len(results) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return results, nil
}

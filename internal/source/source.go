// file: internal/source/source.go
// version: 1.2.0
// guid: 5b1e9c3a-2f7d-4a6b-8c0e-1d4f7a9b2c5e

// Package source defines the pluggable search-source contract and the
// startup-time registry the aggregator and orchestrator consume.
package source

import (
	"context"
)

// Kind is the acquisition transport a source's results require.
type Kind string

const (
	KindDirect  Kind = "direct"  // adapter fetches the file itself
	KindTorrent Kind = "torrent" // payload handed to qBittorrent
	KindScrape  Kind = "scrape"  // chapter scrape-and-assemble with fallback
)

// Category is the search tab a source serves.
type Category string

const (
	CategoryEbook     Category = "ebook"
	CategoryAudiobook Category = "audiobook"
)

// ConfigField describes one declarative configuration input a source needs.
// Consumed by the settings UI; sources with unmet required fields are
// auto-disabled.
type ConfigField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"` // "text", "password", "url"
	Required bool   `json:"required"`
}

// RawResult is the open, source-specific record one search call produces.
// The only field every source must set is "title".
type RawResult map[string]any

// Title returns the result title, or "" when absent/malformed.
func (r RawResult) Title() string {
	return r.String("title")
}

// String returns a string field, tolerating missing keys.
func (r RawResult) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns a numeric field as int64, tolerating the usual JSON shapes.
func (r RawResult) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// StatusSink receives coarse progress text from an in-flight download.
// Satisfied by jobs.Handle.
type StatusSink interface {
	Detail(format string, args ...any)
}

// Source is the capability contract every adapter implements.
type Source interface {
	// Name is the unique internal ID, e.g. "annas".
	Name() string
	// Label is the display name for the UI badge.
	Label() string
	// Color is the CSS hex color for the badge.
	Color() string
	// Kind reports how this source's results are acquired.
	Kind() Kind
	// Categories lists the search tabs this source serves.
	Categories() []Category
	// ConfigFields declares the settings this source needs.
	ConfigFields() []ConfigField
	// Enabled reports whether the source is configured and usable.
	Enabled() bool
	// Search queries the source. Every result must include "title".
	Search(ctx context.Context, query string) ([]RawResult, error)
}

// Downloader is implemented by direct-kind sources that fetch their own
// results. It returns the path of the downloaded artifact.
type Downloader interface {
	Download(ctx context.Context, result RawResult, sink StatusSink) (string, error)
}

// ServesCategory reports whether s is registered for the given category.
func ServesCategory(s Source, cat Category) bool {
	for _, c := range s.Categories() {
		if c == cat {
			return true
		}
	}
	return false
}

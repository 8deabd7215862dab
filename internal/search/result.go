// file: internal/search/result.go
// version: 1.2.0
// guid: 4e6a8c0d-1f3b-4c5d-a7e9-2a4c6e8a0c1f

// Package search fans a query out across the registered sources, normalizes
// the heterogeneous raw results, and returns one deduplicated ranked list.
package search

import (
	"github.com/JeremiahM37/librarr/internal/matcher"
	"github.com/JeremiahM37/librarr/internal/source"
)

// NormalizedResult is the canonical envelope every search hit is reduced to.
// Payload keeps the source-specific fields needed to invoke the download
// later.
type NormalizedResult struct {
	Title     string           `json:"title"`
	Author    string           `json:"author,omitempty"`
	Source    string           `json:"source"`
	Kind      source.Kind      `json:"kind"`
	Size      int64            `json:"size,omitempty"`
	SizeHuman string           `json:"size_human,omitempty"`
	Seeders   int64            `json:"seeders,omitempty"`
	Leechers  int64            `json:"leechers,omitempty"`
	Indexer   string           `json:"indexer,omitempty"`
	Site      string           `json:"site,omitempty"`
	CoverURL  string           `json:"cover_url,omitempty"`
	Verified  bool             `json:"verified"`
	DedupKey  string           `json:"-"`
	Payload   source.RawResult `json:"payload"`

	// orderIdx is the registration position of the producing source, the
	// final ranking tie-break.
	orderIdx int
}

// ContentSignature returns the source-independent identity of a result when
// one exists: md5 for direct archives, info hash for torrents, else the
// source-assigned ID.
func ContentSignature(r source.RawResult) string {
	for _, key := range []string{"md5", "info_hash", "source_id"} {
		if v := r.String(key); v != "" {
			return v
		}
	}
	return ""
}

// Normalize reduces one RawResult to the canonical envelope. Returns false
// for malformed records (empty title), which are dropped rather than
// propagated.
func Normalize(raw source.RawResult, src source.Source, orderIdx int) (NormalizedResult, bool) {
	title := raw.Title()
	if title == "" {
		return NormalizedResult{}, false
	}

	verified := false
	if v, ok := raw["verified"].(bool); ok {
		verified = v
	}
	// Direct sources without an explicit flag are verified by construction:
	// the adapter fetches a concrete file it already located.
	if !verified && src.Kind() == source.KindDirect {
		if _, flagged := raw["verified"]; !flagged {
			verified = true
		}
	}

	key := matcher.Compact(title)
	if sig := ContentSignature(raw); sig != "" {
		key += "|" + sig
	} else {
		key += "|" + src.Name()
	}

	return NormalizedResult{
		Title:     title,
		Author:    raw.String("author"),
		Source:    src.Name(),
		Kind:      src.Kind(),
		Size:      raw.Int64("size"),
		SizeHuman: raw.String("size_human"),
		Seeders:   raw.Int64("seeders"),
		Leechers:  raw.Int64("leechers"),
		Indexer:   raw.String("indexer"),
		Site:      raw.String("site"),
		CoverURL:  raw.String("cover_url"),
		Verified:  verified,
		DedupKey:  key,
		Payload:   raw,
		orderIdx:  orderIdx,
	}, true
}

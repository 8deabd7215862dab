// file: internal/search/filter.go
// version: 1.3.0
// guid: 6a8c0e2f-3b5d-4e7f-a9b1-4c6e8a0c2e3b

package search

import (
	"regexp"
	"sort"

	"github.com/JeremiahM37/librarr/internal/matcher"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Fake uploads advertise executables or cracked-software bait under book
// titles.
var suspiciousKeywords = regexp.MustCompile(
	`(?i)\.(exe|msi|bat|scr|com|vbs|js|ps1|cmd)\b|password|keygen|crack|warez|DevCourseWeb`)

const (
	minTorrentBytes = 10_000
	maxTorrentBytes = 500_000_000
)

// Filter drops junk results: suspicious filename patterns, dead torrents,
// implausible sizes, and titles with no lexical overlap with the query.
// Torrent results sharing a normalized title collapse to the best-seeded one.
func Filter(results []NormalizedResult, query string) []NormalizedResult {
	filtered := results[:0:0]
	seenTorrent := make(map[string]int) // compact title -> index into filtered

	for _, r := range results {
		if suspiciousKeywords.MatchString(r.Title) {
			continue
		}
		if !matcher.Relevant(query, r.Title) {
			continue
		}
		if r.Kind == source.KindTorrent {
			// AudioBookBay hits have no seeder data until the magnet is
			// resolved; keep them.
			if r.Seeders < 1 && r.Payload.String("abb_url") == "" {
				continue
			}
			if r.Size != 0 && (r.Size < minTorrentBytes || r.Size > maxTorrentBytes) {
				continue
			}
			key := matcher.Compact(r.Title)
			if i, dup := seenTorrent[key]; dup {
				if r.Seeders > filtered[i].Seeders {
					filtered[i] = r
				}
				continue
			}
			seenTorrent[key] = len(filtered)
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// Dedupe collapses results sharing a dedup key, preferring verified
// instances, then higher seeders, then larger declared size. Order of first
// appearance is preserved.
func Dedupe(results []NormalizedResult) []NormalizedResult {
	byKey := make(map[string]int, len(results))
	out := results[:0:0]
	for _, r := range results {
		i, seen := byKey[r.DedupKey]
		if !seen {
			byKey[r.DedupKey] = len(out)
			out = append(out, r)
			continue
		}
		if betterInstance(r, out[i]) {
			out[i] = r
		}
	}
	return out
}

func betterInstance(a, b NormalizedResult) bool {
	if a.Verified != b.Verified {
		return a.Verified
	}
	if a.Seeders != b.Seeders {
		return a.Seeders > b.Seeders
	}
	return a.Size > b.Size
}

var kindRank = map[source.Kind]int{
	source.KindDirect:  0,
	source.KindTorrent: 1,
	source.KindScrape:  2,
}

// Rank orders results: direct before torrent before scrape, verified before
// unverified, then higher seeders and larger size, with source registration
// order as the deterministic final tie-break.
func Rank(results []NormalizedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		if a.Verified != b.Verified {
			return a.Verified
		}
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.orderIdx < b.orderIdx
	})
}

// file: internal/search/filter_test.go
// version: 1.2.0
// guid: 4c6e8a0d-1f3b-4e5f-a7b9-2e4a6c8e0a2f

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeremiahM37/librarr/internal/source"
)

type stubSource struct {
	name string
	kind source.Kind
}

func (s *stubSource) Name() string                       { return s.name }
func (s *stubSource) Label() string                      { return s.name }
func (s *stubSource) Color() string                      { return "#000" }
func (s *stubSource) Kind() source.Kind                  { return s.kind }
func (s *stubSource) Categories() []source.Category      { return []source.Category{source.CategoryEbook} }
func (s *stubSource) ConfigFields() []source.ConfigField { return nil }
func (s *stubSource) Enabled() bool                      { return true }
func (s *stubSource) Search(ctx context.Context, query string) ([]source.RawResult, error) {
	return nil, nil
}

func mk(t *testing.T, raw source.RawResult, src source.Source, order int) NormalizedResult {
	t.Helper()
	n, ok := Normalize(raw, src, order)
	require.True(t, ok, "Normalize rejected %v", raw)
	return n
}

func TestNormalizeDropsEmptyTitles(t *testing.T) {
	_, ok := Normalize(source.RawResult{"author": "Nobody"}, &stubSource{name: "annas", kind: source.KindDirect}, 0)
	assert.False(t, ok)
}

func TestNormalizeDirectImplicitlyVerified(t *testing.T) {
	direct := &stubSource{name: "annas", kind: source.KindDirect}
	n := mk(t, source.RawResult{"title": "Dune"}, direct, 0)
	assert.True(t, n.Verified, "direct results are verified by construction")

	n = mk(t, source.RawResult{"title": "Dune", "verified": false}, direct, 0)
	assert.False(t, n.Verified, "explicit verified flag wins")

	torrent := &stubSource{name: "torrent", kind: source.KindTorrent}
	n = mk(t, source.RawResult{"title": "Dune"}, torrent, 1)
	assert.False(t, n.Verified, "torrents are never implicitly verified")
}

func TestDedupKeyUsesContentSignature(t *testing.T) {
	a := mk(t, source.RawResult{"title": "Dune", "md5": "aaa"}, &stubSource{name: "annas", kind: source.KindDirect}, 0)
	b := mk(t, source.RawResult{"title": "Dune", "md5": "aaa"}, &stubSource{name: "other", kind: source.KindDirect}, 1)
	c := mk(t, source.RawResult{"title": "Dune", "md5": "bbb"}, &stubSource{name: "annas", kind: source.KindDirect}, 0)

	assert.Equal(t, a.DedupKey, b.DedupKey, "same md5 from different sources is the same artifact")
	assert.NotEqual(t, a.DedupKey, c.DedupKey, "different md5 is a different artifact")

	// Without a signature the source name scopes the key.
	d := mk(t, source.RawResult{"title": "Dune"}, &stubSource{name: "gutenberg", kind: source.KindDirect}, 2)
	e := mk(t, source.RawResult{"title": "Dune"}, &stubSource{name: "standardebooks", kind: source.KindDirect}, 3)
	assert.NotEqual(t, d.DedupKey, e.DedupKey)
}

func TestFilterDropsSuspiciousAndIrrelevant(t *testing.T) {
	direct := &stubSource{name: "annas", kind: source.KindDirect}
	results := []NormalizedResult{
		mk(t, source.RawResult{"title": "Dune by Frank Herbert"}, direct, 0),
		mk(t, source.RawResult{"title": "Dune.exe installer"}, direct, 0),
		mk(t, source.RawResult{"title": "Dune keygen pack"}, direct, 0),
		mk(t, source.RawResult{"title": "Completely Unrelated Cookbook"}, direct, 0),
	}
	got := Filter(results, "dune")
	require.Len(t, got, 1)
	assert.Equal(t, "Dune by Frank Herbert", got[0].Title)
}

func TestFilterTorrentRules(t *testing.T) {
	torrent := &stubSource{name: "torrent", kind: source.KindTorrent}
	abb := &stubSource{name: "audiobook", kind: source.KindTorrent}
	results := []NormalizedResult{
		mk(t, source.RawResult{"title": "Dune", "seeders": 5, "size": int64(5_000_000), "info_hash": "a"}, torrent, 0),
		mk(t, source.RawResult{"title": "Dune (dead)", "seeders": 0, "info_hash": "b"}, torrent, 0),
		mk(t, source.RawResult{"title": "Dune tiny", "seeders": 9, "size": int64(500), "info_hash": "c"}, torrent, 0),
		mk(t, source.RawResult{"title": "Dune huge", "seeders": 9, "size": int64(600_000_000), "info_hash": "d"}, torrent, 0),
		// No seeder data, but an AudioBookBay detail page: kept.
		mk(t, source.RawResult{"title": "Dune audiobook", "abb_url": "/abss/dune/"}, abb, 1),
	}
	got := Filter(results, "dune")
	require.Len(t, got, 2)
	assert.Equal(t, "Dune", got[0].Title)
	assert.Equal(t, "Dune audiobook", got[1].Title)
}

func TestFilterCollapsesSameTitleTorrents(t *testing.T) {
	torrent := &stubSource{name: "torrent", kind: source.KindTorrent}
	results := []NormalizedResult{
		mk(t, source.RawResult{"title": "Dune EPUB", "seeders": 3, "size": int64(2_000_000), "info_hash": "a"}, torrent, 0),
		mk(t, source.RawResult{"title": "Dune (EPUB)", "seeders": 40, "size": int64(2_100_000), "info_hash": "b"}, torrent, 0),
	}
	got := Filter(results, "dune")
	require.Len(t, got, 1)
	assert.EqualValues(t, 40, got[0].Seeders, "best-seeded instance wins")
}

func TestDedupePrefersVerifiedThenSeedersThenSize(t *testing.T) {
	direct := &stubSource{name: "annas", kind: source.KindDirect}
	base := mk(t, source.RawResult{"title": "Dune", "md5": "aaa", "verified": false, "size": int64(100)}, direct, 0)
	verified := mk(t, source.RawResult{"title": "Dune", "md5": "aaa", "verified": true, "size": int64(50)}, direct, 0)
	bigger := mk(t, source.RawResult{"title": "Dune", "md5": "aaa", "verified": false, "size": int64(900)}, direct, 0)

	got := Dedupe([]NormalizedResult{base, verified, bigger})
	require.Len(t, got, 1)
	assert.True(t, got[0].Verified, "verified instance beats larger unverified one")
	assert.EqualValues(t, 50, got[0].Size)
}

func TestRankOrdering(t *testing.T) {
	direct := &stubSource{name: "annas", kind: source.KindDirect}
	direct2 := &stubSource{name: "gutenberg", kind: source.KindDirect}
	torrent := &stubSource{name: "torrent", kind: source.KindTorrent}
	scrapeSrc := &stubSource{name: "webnovel", kind: source.KindScrape}

	scraped := mk(t, source.RawResult{"title": "Dune", "source_id": "w1"}, scrapeSrc, 4)
	seeded := mk(t, source.RawResult{"title": "Dune", "seeders": 50, "info_hash": "a"}, torrent, 3)
	lowSeeded := mk(t, source.RawResult{"title": "Dune", "seeders": 2, "info_hash": "b"}, torrent, 3)
	directHit := mk(t, source.RawResult{"title": "Dune", "md5": "m"}, direct, 0)
	laterDirect := mk(t, source.RawResult{"title": "Dune", "md5": "n"}, direct2, 1)

	results := []NormalizedResult{scraped, lowSeeded, laterDirect, seeded, directHit}
	Rank(results)

	assert.Equal(t, "annas", results[0].Source, "direct beats everything; earlier registration breaks the tie")
	assert.Equal(t, "gutenberg", results[1].Source)
	assert.EqualValues(t, 50, results[2].Seeders, "higher seeders rank first within torrents")
	assert.EqualValues(t, 2, results[3].Seeders)
	assert.Equal(t, "webnovel", results[4].Source, "scrape ranks last")
}

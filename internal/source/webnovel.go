// file: internal/source/webnovel.go
// version: 1.4.0
// guid: 0a2c4e6f-7b9d-4c1e-a3b5-8c0e2a4c6e7b

package source

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/JeremiahM37/librarr/internal/matcher"
)

// SitePriority orders web-novel sites best-first: scrape reliability and
// chapter completeness, learned the hard way. The dedup merge keeps the
// highest-priority URL as primary and the rest as fallbacks.
var SitePriority = []string{
	"AllNovelFull", "ReadNovelFull", "NovelFull",
	"FreeWebNovel", "NovelBin", "LightNovelPub", "BoxNovel",
}

func sitePriorityIndex(site string) int {
	for i, s := range SitePriority {
		if strings.Contains(site, s) {
			return i
		}
	}
	return len(SitePriority)
}

// WebNovelSource fans out across the web-novel reader sites and merges the
// per-site hits into one deduplicated result set. Results carry the primary
// URL plus alternates for the scrape fallback chain.
type WebNovelSource struct {
	fetcher *Fetcher
}

// NewWebNovelSource creates the web-novel meta adapter.
func NewWebNovelSource(f *Fetcher) *WebNovelSource {
	return &WebNovelSource{fetcher: f}
}

func (s *WebNovelSource) Name() string                { return "webnovel" }
func (s *WebNovelSource) Label() string               { return "Web Novels" }
func (s *WebNovelSource) Color() string               { return "#0984e3" }
func (s *WebNovelSource) Kind() Kind                  { return KindScrape }
func (s *WebNovelSource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *WebNovelSource) ConfigFields() []ConfigField { return nil }
func (s *WebNovelSource) Enabled() bool               { return true }

type siteHit struct {
	site, title, url string
}

type siteSearcher struct {
	name string
	fn   func(ctx context.Context, f *Fetcher, query string) ([]siteHit, error)
}

var siteSearchers = []siteSearcher{
	{"AllNovelFull", searchAllNovelFull},
	{"ReadNovelFull", searchReadNovelFull},
	{"NovelFull", searchNovelFull},
	{"FreeWebNovel", searchFreeWebNovel},
	{"NovelBin", searchNovelBin},
	{"LightNovelPub", searchLightNovelPub},
	{"BoxNovel", searchBoxNovel},
}

// Search runs every site searcher concurrently, merges hits by compacted
// title with site priority, and drops titles with no lexical overlap with
// the query.
func (s *WebNovelSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	var mu sync.Mutex
	var hits []siteHit
	var wg sync.WaitGroup
	for _, searcher := range siteSearchers {
		wg.Add(1)
		go func(sr siteSearcher) {
			defer wg.Done()
			siteHits, err := sr.fn(ctx, s.fetcher, query)
			if err != nil {
				log.Printf("[WARN] %s search failed: %v", sr.name, err)
				return
			}
			mu.Lock()
			hits = append(hits, siteHits...)
			mu.Unlock()
		}(searcher)
	}
	wg.Wait()

	// Merge duplicates across sites. Primary URL comes from the
	// best-priority site; the rest become the fallback chain.
	type group struct {
		hit  siteHit
		alts []string
		site string
	}
	grouped := make(map[string]*group)
	var order []string
	for _, h := range hits {
		key := matcher.Compact(h.title)
		if key == "" {
			continue
		}
		g := grouped[key]
		if g == nil {
			grouped[key] = &group{hit: h, site: h.site}
			order = append(order, key)
			continue
		}
		if sitePriorityIndex(h.site) < sitePriorityIndex(g.site) {
			g.alts = append(g.alts, g.hit.url)
			g.hit = h
			g.site = h.site + ", " + g.site
		} else {
			g.alts = append(g.alts, h.url)
			if !strings.Contains(g.site, h.site) {
				g.site += ", " + h.site
			}
		}
	}

	var results []RawResult
	for _, key := range order {
		g := grouped[key]
		if !matcher.Relevant(query, g.hit.title) {
			continue
		}
		results = append(results, RawResult{
			"title":     g.hit.title,
			"url":       g.hit.url,
			"site":      g.site,
			"alt_urls":  strings.Join(g.alts, "\n"),
			"source_id": "webnovel-" + key,
		})
	}
	return results, nil
}

// CandidateURLs returns the primary URL plus alternates for a result, capped
// at max, for the scrape fallback chain.
func CandidateURLs(result RawResult, max int) []string {
	urls := []string{result.String("url")}
	for _, alt := range strings.Split(result.String("alt_urls"), "\n") {
		if alt != "" {
			urls = append(urls, alt)
		}
	}
	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	return urls
}

var (
	allNovelFullRe  = regexp.MustCompile(`<h3[^>]*class="[^"]*truyen-title[^"]*"[^>]*>\s*<a\s+href="([^"]+)"[^>]*>([^<]+)</a>`)
	novelTitleRe    = regexp.MustCompile(`<h3[^>]*class="[^"]*novel-title[^"]*"[^>]*>\s*<a\s+href="([^"]+)"[^>]*>([^<]+)</a>`)
	novelBinAltRe   = regexp.MustCompile(`<a\s+href="(https?://novelbin\.me/novel-book/[^"]+)"[^>]*title="([^"]+)"`)
	listGroupRe     = regexp.MustCompile(`<a\s+href="([^"]+)"[^>]*class="list-group-item"[^>]*title="([^"]+)"`)
	freeWebNovelRe  = regexp.MustCompile(`(?s)<a\s+href="(/[^"]+)"[^>]*class="tit[^"]*"[^>]*(?:\s+title="([^"]*)")?[^>]*>(.*?)</a>`)
	lnpFallbackRe   = regexp.MustCompile(`<a\s+href="(/novel/[^"]+)"[^>]*>([^<]+)</a>`)
	boxNovelTitleRe = regexp.MustCompile(`(?s)<div class="post-title">\s*<h3[^>]*>\s*<a\s+href="([^"]+)"[^>]*>([^<]+)</a>`)
)

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return base + href
}

func searchAllNovelFull(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, "https://allnovelfull.net/search", url.Values{"keyword": {query}}, nil)
	if err != nil {
		return nil, err
	}
	var hits []siteHit
	for _, m := range allNovelFullRe.FindAllStringSubmatch(body, -1) {
		hits = append(hits, siteHit{"AllNovelFull", strings.TrimSpace(m[2]), absoluteURL("https://allnovelfull.net", m[1])})
	}
	return hits, nil
}

// searchListGroup handles the NovelFull-family ajax search endpoints, which
// share markup.
func searchListGroup(ctx context.Context, f *Fetcher, site, base, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, base+"/ajax/search-novel", url.Values{"keyword": {query}},
		map[string]string{"X-Requested-With": "XMLHttpRequest"})
	if err != nil {
		return nil, err
	}
	var hits []siteHit
	for _, m := range listGroupRe.FindAllStringSubmatch(body, -1) {
		title := strings.TrimSpace(m[2])
		if strings.Contains(strings.ToLower(title), "see more") || strings.Contains(m[1], "search?") {
			continue
		}
		hits = append(hits, siteHit{site, title, absoluteURL(base, m[1])})
	}
	return hits, nil
}

func searchReadNovelFull(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	return searchListGroup(ctx, f, "ReadNovelFull", "https://readnovelfull.com", query)
}

func searchNovelFull(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	return searchListGroup(ctx, f, "NovelFull", "https://novelfull.com", query)
}

func searchFreeWebNovel(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, "https://freewebnovel.com/search/", url.Values{"searchkey": {query}}, nil)
	if err != nil {
		return nil, err
	}
	var hits []siteHit
	for _, m := range freeWebNovelRe.FindAllStringSubmatch(body, -1) {
		title := strings.TrimSpace(tagRe.ReplaceAllString(m[3], ""))
		if title == "" {
			title = strings.TrimSpace(m[2])
		}
		if title == "" {
			continue
		}
		hits = append(hits, siteHit{"FreeWebNovel", title, absoluteURL("https://freewebnovel.com", m[1])})
	}
	return hits, nil
}

func searchNovelBin(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, "https://novelbin.me/search", url.Values{"keyword": {query}}, nil)
	if err != nil {
		return nil, err
	}
	matches := novelTitleRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		matches = novelBinAltRe.FindAllStringSubmatch(body, -1)
	}
	seen := make(map[string]bool)
	var hits []siteHit
	for _, m := range matches {
		u := absoluteURL("https://novelbin.me", m[1])
		if strings.Contains(u, "/chapter-") || strings.Contains(u, "/cchapter-") || seen[u] {
			continue
		}
		seen[u] = true
		hits = append(hits, siteHit{"NovelBin", strings.TrimSpace(m[2]), u})
	}
	return hits, nil
}

func searchLightNovelPub(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, "https://www.lightnovelpub.com/lnwsearchlive", url.Values{"inputContent": {query}},
		map[string]string{"X-Requested-With": "XMLHttpRequest"})
	if err != nil {
		return nil, err
	}
	var payload struct {
		ResultList []struct {
			NovelName     string `json:"novelName"`
			NovelNameHref string `json:"novelNameHref"`
		} `json:"resultlist"`
	}
	var hits []siteHit
	if json.Unmarshal([]byte(body), &payload) == nil && len(payload.ResultList) > 0 {
		for _, item := range payload.ResultList {
			if item.NovelName == "" || item.NovelNameHref == "" {
				continue
			}
			hits = append(hits, siteHit{"LightNovelPub", strings.TrimSpace(item.NovelName),
				absoluteURL("https://www.lightnovelpub.com", item.NovelNameHref)})
		}
		return hits, nil
	}
	// Some responses are plain HTML instead of the JSON shape.
	for _, m := range lnpFallbackRe.FindAllStringSubmatch(body, -1) {
		hits = append(hits, siteHit{"LightNovelPub", strings.TrimSpace(m[2]), "https://www.lightnovelpub.com" + m[1]})
	}
	return hits, nil
}

func searchBoxNovel(ctx context.Context, f *Fetcher, query string) ([]siteHit, error) {
	body, err := f.GetString(ctx, "https://boxnovel.com/", url.Values{"s": {query}, "post_type": {"wp-manga"}}, nil)
	if err != nil {
		return nil, err
	}
	var hits []siteHit
	for _, m := range boxNovelTitleRe.FindAllStringSubmatch(body, -1) {
		hits = append(hits, siteHit{"BoxNovel", strings.TrimSpace(m[2]), m[1]})
	}
	return hits, nil
}

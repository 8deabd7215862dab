// file: internal/source/audiobookbay.go
// version: 1.2.0
// guid: 8e0a2c4d-5f7b-4a9c-b1d3-6a8c0e2a4c5f

package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Known AudioBookBay mirrors, tried in order.
var abbDomains = []string{
	"https://audiobookbay.lu",
	"https://audiobookbay.is",
	"https://audiobookbay.li",
}

// Fallback trackers for magnets when the detail page lists none.
var abbTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://tracker.tiny-vps.com:6969/announce",
	"udp://tracker.dler.org:6969/announce",
	"http://tracker.files.fm:6969/announce",
}

var (
	abbEntryRe    = regexp.MustCompile(`(?s)<h2[^>]*><a href="(/abss/[^"]+)"[^>]*>(.*?)</a></h2>.*?<div class="postInfo">(.*?)</div>`)
	abbLangRe     = regexp.MustCompile(`Language:\s*(\w+)`)
	abbInfoHashRe = regexp.MustCompile(`(?s)Info Hash:.*?<td[^>]*>\s*([0-9a-fA-F]{40})`)
	abbTrackerRe  = regexp.MustCompile(`<td>((?:udp|http)://[^<]+)</td>`)
	abbTitleRe    = regexp.MustCompile(`(?s)<h1[^>]*>(.*?)</h1>`)
)

// AudioBookBaySource scrapes AudioBookBay for audiobook torrents. The site
// publishes no sizes or seeder counts on the result page; magnets are
// resolved from the detail page's info hash at download time.
type AudioBookBaySource struct {
	fetcher *Fetcher
}

// NewAudioBookBaySource creates the AudioBookBay adapter.
func NewAudioBookBaySource(f *Fetcher) *AudioBookBaySource {
	return &AudioBookBaySource{fetcher: f}
}

func (s *AudioBookBaySource) Name() string                { return "audiobook" }
func (s *AudioBookBaySource) Label() string               { return "AudioBookBay" }
func (s *AudioBookBaySource) Color() string               { return "#fd79a8" }
func (s *AudioBookBaySource) Kind() Kind                  { return KindTorrent }
func (s *AudioBookBaySource) Categories() []Category      { return []Category{CategoryAudiobook} }
func (s *AudioBookBaySource) ConfigFields() []ConfigField { return nil }
func (s *AudioBookBaySource) Enabled() bool               { return true }

// get tries each mirror in order and returns the first 200 body.
func (s *AudioBookBaySource) get(ctx context.Context, path string, params url.Values) (string, error) {
	var lastErr error
	for _, domain := range abbDomains {
		body, err := s.fetcher.GetString(ctx, domain+path, params, nil)
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no AudioBookBay mirror reachable")
	}
	return "", lastErr
}

// Search scrapes the search result page, keeping English entries.
func (s *AudioBookBaySource) Search(ctx context.Context, query string) ([]RawResult, error) {
	body, err := s.get(ctx, "/", url.Values{"s": {query}, "tt": {"1"}})
	if err != nil {
		return nil, err
	}
	if i := strings.Index(body, `<div id="content">`); i >= 0 {
		body = body[i:]
	}

	var results []RawResult
	for _, m := range abbEntryRe.FindAllStringSubmatch(body, -1) {
		title := strings.TrimSpace(tagRe.ReplaceAllString(m[2], ""))
		if title == "" {
			continue
		}
		if lm := abbLangRe.FindStringSubmatch(m[3]); lm != nil {
			if lang := strings.ToLower(lm[1]); lang != "" && lang != "english" {
				continue
			}
		}
		results = append(results, RawResult{
			"title":      title,
			"size_human": "?",
			"indexer":    "AudioBookBay",
			"abb_url":    m[1],
			"source_id":  "abb-" + m[1],
		})
	}
	return results, nil
}

// ResolveMagnet builds a magnet link from the detail page's info hash and
// tracker list.
func (s *AudioBookBaySource) ResolveMagnet(ctx context.Context, abbPath string) (string, error) {
	body, err := s.get(ctx, abbPath, nil)
	if err != nil {
		return "", err
	}
	hm := abbInfoHashRe.FindStringSubmatch(body)
	if hm == nil {
		return "", fmt.Errorf("no info hash on detail page %s", abbPath)
	}
	trackers := abbTrackerRe.FindAllStringSubmatch(body, -1)
	trackerList := make([]string, 0, len(trackers))
	for _, t := range trackers {
		trackerList = append(trackerList, t[1])
	}
	if len(trackerList) == 0 {
		trackerList = abbTrackers
	}

	dn := ""
	if tm := abbTitleRe.FindStringSubmatch(body); tm != nil {
		dn = strings.TrimSpace(tagRe.ReplaceAllString(tm[1], ""))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "magnet:?xt=urn:btih:%s", hm[1])
	if dn != "" {
		fmt.Fprintf(&b, "&dn=%s", url.QueryEscape(dn))
	}
	for _, t := range trackerList {
		fmt.Fprintf(&b, "&tr=%s", url.QueryEscape(t))
	}
	return b.String(), nil
}

// file: internal/source/annas.go
// version: 1.4.0
// guid: 6e8a0c2d-3f5b-4a7c-8d9e-4b6a8c0e2d3f

package source

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const (
	annasBaseURL  = "https://annas-archive.li"
	libgenBaseURL = "https://libgen.li"
)

var (
	annasBlockRe  = regexp.MustCompile(`(?s)<div class="flex\s+pt-3 pb-3 border-b.*?">(.*?)(?:<div class="flex\s+pt-3 pb-3 border-b|<footer)`)
	annasMD5Re    = regexp.MustCompile(`/md5/([a-f0-9]+)`)
	annasTitleRe  = regexp.MustCompile(`(?s)font-semibold text-lg[^>]*>(.*?)</a>`)
	annasAuthorRe = regexp.MustCompile(`(?s)user-edit[^>]*></span>\s*(.*?)</a>`)
	annasSizeRe   = regexp.MustCompile(`\d+[.\d]*\s*[KMG]i?B`)
	libgenGetRe   = regexp.MustCompile(`href="(get\.php\?md5=[^"]+)"`)
	libgenFileRe  = regexp.MustCompile(`href="(https?://libgen\.li/file\.php\?id=\d+)"`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
)

// AnnasSource searches Anna's Archive for pre-made EPUBs and downloads them
// through the libgen mirrors. Always enabled; no configuration needed.
type AnnasSource struct {
	fetcher     *Fetcher
	incomingDir string
	minBytes    int64
}

// NewAnnasSource creates the Anna's Archive adapter.
func NewAnnasSource(f *Fetcher, incomingDir string, minBytes int64) *AnnasSource {
	return &AnnasSource{fetcher: f, incomingDir: incomingDir, minBytes: minBytes}
}

func (s *AnnasSource) Name() string                { return "annas" }
func (s *AnnasSource) Label() string               { return "Anna's Archive" }
func (s *AnnasSource) Color() string               { return "#6c5ce7" }
func (s *AnnasSource) Kind() Kind                  { return KindDirect }
func (s *AnnasSource) Categories() []Category      { return []Category{CategoryEbook} }
func (s *AnnasSource) ConfigFields() []ConfigField { return nil }
func (s *AnnasSource) Enabled() bool               { return true }

// Search scrapes the Anna's Archive result page for EPUBs, sorts candidates
// by size descending (complete compilations first), and keeps only the ones
// whose libgen mirror actually serves the file.
func (s *AnnasSource) Search(ctx context.Context, query string) ([]RawResult, error) {
	html, err := s.fetcher.GetString(ctx, annasBaseURL+"/search",
		url.Values{"q": {query}, "ext": {"epub"}}, nil)
	if err != nil {
		return nil, err
	}

	var candidates []RawResult
	blocks := annasBlockRe.FindAllStringSubmatch(html, 20)
	for _, b := range blocks {
		block := b[1]
		md5m := annasMD5Re.FindStringSubmatch(block)
		if md5m == nil {
			continue
		}
		title := stripTags(annasTitleRe, block)
		if title == "" {
			continue
		}
		sizeHuman := annasSizeRe.FindString(block)
		candidates = append(candidates, RawResult{
			"title":      title,
			"author":     stripTags(annasAuthorRe, block),
			"size":       ParseHumanSize(sizeHuman),
			"size_human": sizeHuman,
			"md5":        md5m[1],
			"source_id":  "annas-" + md5m[1],
			"url":        annasBaseURL + "/md5/" + md5m[1],
			"verified":   false,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Int64("size") > candidates[j].Int64("size")
	})

	// Dead libgen entries are common; verify in parallel before surfacing.
	results := s.verifyAvailable(ctx, candidates)
	if len(candidates) > 0 && len(results) == 0 {
		log.Printf("[INFO] Anna's Archive: all %d candidates for %q are dead on libgen", len(candidates), query)
	}
	return results, nil
}

func (s *AnnasSource) verifyAvailable(ctx context.Context, candidates []RawResult) []RawResult {
	type verdict struct {
		idx int
		ok  bool
	}
	out := make(chan verdict, len(candidates))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 8)
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, md5 string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out <- verdict{i, s.libgenAvailable(ctx, md5)}
		}(i, c.String("md5"))
	}
	wg.Wait()
	close(out)

	alive := make(map[int]bool, len(candidates))
	for v := range out {
		alive[v.idx] = v.ok
	}
	var results []RawResult
	for i, c := range candidates {
		if alive[i] {
			c["verified"] = true
			results = append(results, c)
		}
	}
	return results
}

// libgenAvailable checks whether the libgen ads page exposes a working GET
// link for the given md5.
func (s *AnnasSource) libgenAvailable(ctx context.Context, md5 string) bool {
	page, err := s.fetcher.GetString(ctx, libgenBaseURL+"/ads.php", url.Values{"md5": {md5}}, nil)
	if err != nil {
		return false
	}
	m := libgenGetRe.FindStringSubmatch(page)
	if m == nil {
		return false
	}
	resp, err := s.fetcher.Get(ctx, libgenBaseURL+"/"+m[1], nil, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false
	}
	return !strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}

// Download resolves the libgen download link for the result's md5 and saves
// the EPUB into the incoming directory.
func (s *AnnasSource) Download(ctx context.Context, result RawResult, sink StatusSink) (string, error) {
	md5 := result.String("md5")
	title := result.Title()
	if md5 == "" {
		return "", fmt.Errorf("result has no md5 hash")
	}

	sink.Detail("Fetching download link from Anna's Archive...")
	downloadURL := ""
	if page, err := s.fetcher.GetString(ctx, libgenBaseURL+"/ads.php", url.Values{"md5": {md5}}, nil); err == nil {
		if m := libgenGetRe.FindStringSubmatch(page); m != nil {
			downloadURL = libgenBaseURL + "/" + m[1]
			log.Printf("[INFO] Anna's Archive: found libgen GET link for %q", title)
		}
	}
	if downloadURL == "" {
		sink.Detail("Trying alternative mirrors...")
		if page, err := s.fetcher.GetString(ctx, annasBaseURL+"/md5/"+md5, nil, nil); err == nil {
			if m := libgenFileRe.FindStringSubmatch(page); m != nil {
				downloadURL = m[1]
			}
		}
	}
	if downloadURL == "" {
		return "", fmt.Errorf("no working mirror for %q", title)
	}

	sink.Detail("Downloading EPUB...")
	name := SafeFilename(title, "book") + ".epub"
	path, size, err := s.fetcher.DownloadToFile(ctx, downloadURL, s.incomingDir, name, s.minBytes)
	if err != nil {
		return "", err
	}
	log.Printf("[INFO] Anna's Archive: downloaded %q (%s)", title, HumanSize(size))
	return path, nil
}

func stripTags(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(tagRe.ReplaceAllString(m[1], ""))
}

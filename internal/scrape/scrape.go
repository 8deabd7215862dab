// file: internal/scrape/scrape.go
// version: 1.5.0
// guid: 2e4a6c8d-9f1b-4a3c-b5d7-0a2c4e6a8c9f

// Package scrape walks a web novel chapter by chapter and assembles the
// result into an EPUB. One ScrapeNovel call covers one site; the
// orchestrator chains calls across candidate sites.
package scrape

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/JeremiahM37/librarr/internal/epub"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Scraper fetches chapter pages and assembles EPUBs.
type Scraper struct {
	fetcher     *source.Fetcher
	outDir      string
	siteTimeout time.Duration
	maxChapters int
}

// New creates a scraper writing EPUBs into outDir. siteTimeout bounds one
// whole-site scrape.
func New(f *source.Fetcher, outDir string, siteTimeout time.Duration) *Scraper {
	if siteTimeout <= 0 {
		siteTimeout = 30 * time.Minute
	}
	return &Scraper{
		fetcher:     f,
		outDir:      outDir,
		siteTimeout: siteTimeout,
		maxChapters: 5000,
	}
}

// SiteName returns the bare host of a novel URL for progress text.
func SiteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

var chapterHrefRe = regexp.MustCompile(`(?i)/c?chapter[-_/]?(\d+)|/c-(\d+)`)

// ScrapeNovel scrapes every chapter starting from the novel's landing page
// and writes the assembled EPUB. Returns the artifact path.
func (s *Scraper) ScrapeNovel(ctx context.Context, novelURL, title string, sink source.StatusSink) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.siteTimeout)
	defer cancel()

	site := SiteName(novelURL)
	page, err := s.fetchDoc(ctx, novelURL)
	if err != nil {
		return "", fmt.Errorf("novel page unreachable: %w", err)
	}

	first := firstChapterURL(page, novelURL)
	if first == "" {
		return "", fmt.Errorf("no chapter links found on %s", site)
	}

	var chapters []epub.Chapter
	visited := make(map[string]bool)
	next := first
	for next != "" && !visited[next] && len(chapters) < s.maxChapters {
		visited[next] = true
		doc, err := s.fetchDoc(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("scrape timed out after %d chapters: %w", len(chapters), ctx.Err())
			}
			// A single dead chapter page ends the walk; partial books are
			// still useful if long enough.
			log.Printf("[WARN] Chapter fetch failed on %s after %d chapters: %v", site, len(chapters), err)
			break
		}

		ch, ok := extractChapter(doc, len(chapters)+1)
		if ok {
			chapters = append(chapters, ch)
			if len(chapters)%25 == 0 {
				sink.Detail("Scraping from %s... %d chapters", site, len(chapters))
			}
		}
		next = nextChapterURL(doc, next)
	}

	if len(chapters) == 0 {
		return "", fmt.Errorf("no readable chapters on %s", site)
	}
	log.Printf("[INFO] Scraped %d chapters of %q from %s", len(chapters), title, site)

	sink.Detail("Assembling EPUB (%d chapters)...", len(chapters))
	path := s.outDir + "/" + source.SafeFilename(title, "novel") + ".epub"
	if err := epub.Assemble(path, epub.Metadata{Title: title, Source: site}, chapters); err != nil {
		return "", fmt.Errorf("EPUB assembly failed: %w", err)
	}
	return path, nil
}

func (s *Scraper) fetchDoc(ctx context.Context, pageURL string) (*html.Node, error) {
	body, err := s.fetcher.GetString(ctx, pageURL, nil, nil)
	if err != nil {
		return nil, err
	}
	return html.Parse(strings.NewReader(body))
}

// firstChapterURL finds the lowest-numbered chapter link on the novel page.
func firstChapterURL(doc *html.Node, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	best := ""
	bestNum := -1
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attr(n, "href")
		m := chapterHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		numStr := m[1]
		if numStr == "" {
			numStr = m[2]
		}
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return
		}
		resolved, err := baseURL.Parse(href)
		if err != nil || resolved.Host != baseURL.Host {
			return
		}
		if bestNum == -1 || num < bestNum {
			bestNum = num
			best = resolved.String()
		}
	})
	return best
}

// nextChapterURL finds the forward navigation link on a chapter page.
func nextChapterURL(doc *html.Node, current string) string {
	currentURL, err := url.Parse(current)
	if err != nil {
		return ""
	}
	found := ""
	walk(doc, func(n *html.Node) {
		if found != "" || n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attr(n, "href")
		if href == "" || href == "#" {
			return
		}
		id := attr(n, "id")
		class := attr(n, "class")
		rel := attr(n, "rel")
		label := strings.ToLower(strings.TrimSpace(text(n)))
		isNext := strings.Contains(id, "next") || rel == "next" ||
			strings.Contains(class, "next") ||
			strings.HasPrefix(label, "next")
		if !isNext {
			return
		}
		resolved, err := currentURL.Parse(href)
		if err != nil || resolved.Host != currentURL.Host || resolved.String() == current {
			return
		}
		found = resolved.String()
	})
	return found
}

// Containers the reader sites put chapter text in, by id or class fragment.
var contentSelectors = []string{"chapter-content", "chr-content", "chapter-c", "txt", "content"}

// extractChapter pulls the chapter title and body from a chapter page.
func extractChapter(doc *html.Node, seq int) (epub.Chapter, bool) {
	title := chapterTitle(doc, seq)

	var node *html.Node
	for _, sel := range contentSelectors {
		if node = findByIDOrClass(doc, sel); node != nil {
			break
		}
	}
	if node == nil {
		node = largestTextDiv(doc)
	}
	if node == nil {
		return epub.Chapter{}, false
	}

	body := renderParagraphs(node)
	if len(body) < 200 {
		return epub.Chapter{}, false
	}
	return epub.Chapter{Title: title, HTML: body}, true
}

func chapterTitle(doc *html.Node, seq int) string {
	for _, tag := range []string{"h1", "h2", "h3"} {
		var found string
		walk(doc, func(n *html.Node) {
			if found != "" || n.Type != html.ElementNode || n.Data != tag {
				return
			}
			t := strings.TrimSpace(text(n))
			if t != "" {
				found = t
			}
		})
		if found != "" {
			return found
		}
	}
	return fmt.Sprintf("Chapter %d", seq)
}

// renderParagraphs extracts the text paragraphs of a content node, dropping
// scripts, ads and navigation.
func renderParagraphs(node *html.Node) string {
	var b strings.Builder
	var emit func(*html.Node)
	emit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "ins", "iframe", "nav", "button", "select":
				return
			case "p", "div", "br":
				if t := directText(n); t != "" {
					fmt.Fprintf(&b, "<p>%s</p>\n", htmlEscape(t))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			emit(c)
		}
	}
	emit(node)
	if b.Len() > 0 {
		return b.String()
	}
	// No paragraph structure; fall back to the node's raw text.
	if t := strings.TrimSpace(text(node)); t != "" {
		return "<p>" + htmlEscape(t) + "</p>\n"
	}
	return ""
}

// directText returns the text directly under n (not nested block elements).
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			// Inline formatting stays; nested blocks are emitted separately.
			switch c.Data {
			case "em", "i", "strong", "b", "span", "a":
				b.WriteString(text(c))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func findByIDOrClass(doc *html.Node, fragment string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) {
		if found != nil || n.Type != html.ElementNode || n.Data != "div" {
			return
		}
		if attr(n, "id") == fragment || strings.Contains(attr(n, "class"), fragment) {
			found = n
		}
	})
	return found
}

// largestTextDiv is the readability fallback: the div with the most direct
// text is almost always the chapter body.
func largestTextDiv(doc *html.Node) *html.Node {
	var best *html.Node
	bestLen := 500 // anything smaller is chrome, not content
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" {
			return
		}
		// A child carrying the same text as its parent is visited later and
		// wins, so the deepest wrapper is selected.
		if l := len(text(n)); l >= bestLen {
			best = n
			bestLen = l
		}
	})
	return best
}

// file: internal/scrape/scrape_test.go
// version: 1.1.0
// guid: 4a6c8e0d-1b3f-4c5d-a7e9-2a4c6e8a0c2d

package scrape

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/JeremiahM37/librarr/internal/epub"
	"github.com/JeremiahM37/librarr/internal/source"
)

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

type nopSink struct{}

func (nopSink) Detail(format string, args ...any) {}

func TestSiteName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://www.allnovelfull.net/martial-peak.html", "allnovelfull.net"},
		{"https://novelbin.me/novel-book/x", "novelbin.me"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := SiteName(tt.in); got != tt.want {
			t.Errorf("SiteName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstChapterURLPicksLowestNumber(t *testing.T) {
	doc := parse(t, `<html><body>
		<a href="/martial-peak/chapter-250.html">Chapter 250</a>
		<a href="/martial-peak/chapter-1.html">Chapter 1</a>
		<a href="/martial-peak/chapter-12.html">Chapter 12</a>
		<a href="https://elsewhere.com/chapter-0.html">offsite</a>
		<a href="/about.html">About</a>
	</body></html>`)

	got := firstChapterURL(doc, "https://allnovelfull.net/martial-peak.html")
	want := "https://allnovelfull.net/martial-peak/chapter-1.html"
	if got != want {
		t.Errorf("firstChapterURL = %q, want %q", got, want)
	}
}

func TestFirstChapterURLNoLinks(t *testing.T) {
	doc := parse(t, `<html><body><a href="/contact">Contact</a></body></html>`)
	if got := firstChapterURL(doc, "https://allnovelfull.net/x.html"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestNextChapterURL(t *testing.T) {
	current := "https://allnovelfull.net/mp/chapter-1.html"

	tests := []struct {
		name, markup, want string
	}{
		{"by id", `<a id="next_chap" href="/mp/chapter-2.html">x</a>`,
			"https://allnovelfull.net/mp/chapter-2.html"},
		{"by class", `<a class="btn next-chapter" href="/mp/chapter-2.html">x</a>`,
			"https://allnovelfull.net/mp/chapter-2.html"},
		{"by rel", `<a rel="next" href="/mp/chapter-2.html">x</a>`,
			"https://allnovelfull.net/mp/chapter-2.html"},
		{"by label", `<a href="/mp/chapter-2.html">Next Chapter</a>`,
			"https://allnovelfull.net/mp/chapter-2.html"},
		{"self link ignored", `<a rel="next" href="/mp/chapter-1.html">Next</a>`, ""},
		{"offsite ignored", `<a rel="next" href="https://ads.example.com/x">Next</a>`, ""},
		{"placeholder ignored", `<a rel="next" href="#">Next</a>`, ""},
	}
	for _, tt := range tests {
		doc := parse(t, "<html><body>"+tt.markup+"</body></html>")
		if got := nextChapterURL(doc, current); got != tt.want {
			t.Errorf("%s: nextChapterURL = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func chapterMarkup(title, next string) string {
	body := strings.Repeat("<p>The mountain wind carried the scent of pine down into the valley.</p>", 10)
	page := fmt.Sprintf(`<html><body>
		<h2>%s</h2>
		<div id="chapter-content">%s</div>`, title, body)
	if next != "" {
		page += fmt.Sprintf(`<a id="next_chap" href="%s">Next</a>`, next)
	}
	return page + "</body></html>"
}

func TestExtractChapter(t *testing.T) {
	doc := parse(t, chapterMarkup("Chapter 1: The Valley", ""))
	ch, ok := extractChapter(doc, 1)
	if !ok {
		t.Fatal("extraction failed")
	}
	if ch.Title != "Chapter 1: The Valley" {
		t.Errorf("title = %q", ch.Title)
	}
	if !strings.Contains(ch.HTML, "mountain wind") {
		t.Errorf("body text missing: %q", ch.HTML)
	}
}

func TestExtractChapterRejectsThinPages(t *testing.T) {
	doc := parse(t, `<html><body><div id="chapter-content"><p>404</p></div></body></html>`)
	if _, ok := extractChapter(doc, 1); ok {
		t.Fatal("thin page must be rejected")
	}
}

func TestExtractChapterDropsScriptsAndAds(t *testing.T) {
	doc := parse(t, `<html><body><div id="chapter-content">
		<script>trackPageView()</script>
		<ins class="adsbygoogle">buy things</ins>
		`+strings.Repeat("<p>Real prose that belongs in the book, sentence after sentence.</p>", 5)+`
	</div></body></html>`)
	ch, ok := extractChapter(doc, 1)
	if !ok {
		t.Fatal("extraction failed")
	}
	if strings.Contains(ch.HTML, "trackPageView") || strings.Contains(ch.HTML, "buy things") {
		t.Errorf("ad/script text leaked into chapter: %q", ch.HTML)
	}
}

func TestScrapeNovelWalksChapters(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/novel.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/chapter-1.html">Chapter 1</a></body></html>`)
	})
	mux.HandleFunc("/chapter-1.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chapterMarkup("Chapter 1", "/chapter-2.html"))
	})
	mux.HandleFunc("/chapter-2.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chapterMarkup("Chapter 2", ""))
	})

	s := New(source.NewFetcher(5*time.Second, 100), t.TempDir(), time.Minute)
	path, err := s.ScrapeNovel(t.Context(), srv.URL+"/novel.html", "Test Novel", nopSink{})
	if err != nil {
		t.Fatalf("ScrapeNovel: %v", err)
	}
	if err := epub.Validate(path, 1); err != nil {
		t.Fatalf("assembled EPUB invalid: %v", err)
	}
}

func TestScrapeNovelFailsWithoutChapters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nothing here.</p></body></html>`)
	}))
	defer srv.Close()

	s := New(source.NewFetcher(5*time.Second, 100), t.TempDir(), time.Minute)
	if _, err := s.ScrapeNovel(t.Context(), srv.URL, "Test Novel", nopSink{}); err == nil {
		t.Fatal("expected failure for a page without chapter links")
	}
}

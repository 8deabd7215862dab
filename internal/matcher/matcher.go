// file: internal/matcher/matcher.go
// version: 1.2.0
// guid: a4b6c8d0-e2f4-4a6b-8c0d-e2f4a6b8c0d2

// Package matcher scores and normalizes titles for result ranking,
// deduplication, and fallback candidate selection.
package matcher

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "and": true, "or": true, "is": true,
	"it": true, "by": true,
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and keeps only letters, digits and
// spaces. "Brandon Sanderson — Mistborn!" and "brandon sanderson mistborn"
// normalize identically.
func Normalize(s string) string {
	if folded, _, err := transform.String(deaccent, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Compact returns the dedup-key form of a title: normalized, spaces removed,
// capped at 60 bytes. Stable across repeated searches for the same work.
func Compact(s string) string {
	key := strings.ReplaceAll(Normalize(s), " ", "")
	if len(key) > 60 {
		key = key[:60]
	}
	return key
}

func contentWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(Normalize(s)) {
		if !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

func overlap(query, title string) (shared, queryWords int) {
	q := contentWords(query)
	t := contentWords(title)
	for w := range q {
		if t[w] {
			shared++
		}
	}
	return shared, len(q)
}

// Relevant reports whether a result title has any lexical overlap with the
// query. Results with zero overlap are junk regardless of source.
func Relevant(query, title string) bool {
	shared, qn := overlap(query, title)
	return qn > 0 && shared >= 1
}

// TitleMatch reports whether a candidate title is the same work as the query:
// either one contains the other, or at least 80% of the query's content words
// appear in the candidate. Used to pick direct-EPUB fallback candidates.
func TitleMatch(query, title string) bool {
	q := Normalize(query)
	t := Normalize(title)
	if q == "" || t == "" {
		return false
	}
	if strings.Contains(t, q) || strings.Contains(q, t) {
		return true
	}
	shared, qn := overlap(query, title)
	if qn == 0 {
		return false
	}
	return float64(shared)/float64(qn) >= 0.8
}

// Score rates how well query matches target, 0-100. Exact beats prefix beats
// substring beats edit distance.
func Score(query, target string) int {
	q := Normalize(query)
	t := Normalize(target)
	if q == "" || t == "" {
		return 0
	}
	if q == t {
		return 100
	}

	score := 0
	if strings.HasPrefix(t, q) {
		score = 90
	}
	if strings.Contains(t, q) {
		ratio := float64(len(q)) / float64(len(t))
		if s := 60 + int(ratio*25); s > score {
			score = s
		}
	}
	for _, w := range strings.Fields(t) {
		if strings.HasPrefix(w, q) && score < 80 {
			score = 80
		}
	}

	dist := fuzzy.LevenshteinDistance(q, t)
	maxLen := len(q)
	if len(t) > maxLen {
		maxLen = len(t)
	}
	if maxLen > 0 {
		if s := int((1.0 - float64(dist)/float64(maxLen)) * 50); s > score {
			score = s
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

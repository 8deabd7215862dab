// file: internal/source/webnovel_test.go
// version: 1.0.0
// guid: 0a2c4e6d-7f9b-4e1d-a3c5-8c0e2a4c6e7f

package source

import (
	"reflect"
	"testing"
)

func TestCandidateURLs(t *testing.T) {
	result := RawResult{
		"url":      "https://allnovelfull.net/martial-peak.html",
		"alt_urls": "https://novelbin.me/novel-book/martial-peak\nhttps://freewebnovel.com/martial-peak.html",
	}

	got := CandidateURLs(result, 3)
	want := []string{
		"https://allnovelfull.net/martial-peak.html",
		"https://novelbin.me/novel-book/martial-peak",
		"https://freewebnovel.com/martial-peak.html",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CandidateURLs = %v, want %v", got, want)
	}

	if got := CandidateURLs(result, 2); len(got) != 2 || got[0] != want[0] {
		t.Errorf("cap not applied: %v", got)
	}

	// No alternates: just the primary URL.
	solo := RawResult{"url": "https://allnovelfull.net/x.html"}
	if got := CandidateURLs(solo, 3); len(got) != 1 {
		t.Errorf("expected single candidate, got %v", got)
	}
}

// file: internal/source/download.go
// version: 1.2.0
// guid: 4c6e8a0b-1d3f-4e5a-9b7c-2f4a6c8e0b1d

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^\w\s-]`)

// SafeFilename strips filesystem-hostile characters from a title and caps the
// length, falling back to fallback when nothing survives.
func SafeFilename(title, fallback string) string {
	s := unsafeChars.ReplaceAllString(title, "")
	if len(s) > 80 {
		s = s[:80]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

// HumanSize formats a byte count for display.
func HumanSize(n int64) string {
	if n <= 0 {
		return "?"
	}
	v := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f TB", v)
}

var humanSizeRe = regexp.MustCompile(`(?i)([\d.]+)\s*([KMG]i?B|B)`)

// ParseHumanSize converts a display size like "2.3 MB" back to bytes. Returns
// 0 for anything it cannot parse; sites report sizes loosely.
func ParseHumanSize(s string) int64 {
	m := humanSizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(m[2])
	unit = strings.Replace(unit, "IB", "B", 1)
	mult := float64(1)
	switch unit {
	case "KB":
		mult = 1e3
	case "MB":
		mult = 1e6
	case "GB":
		mult = 1e9
	}
	return int64(val * mult)
}

// SaveBody streams an HTTP response body to destDir/name, creating the
// directory as needed, and returns the path and byte count. Bodies that are
// HTML or smaller than minBytes are rejected and the partial file removed.
func SaveBody(resp *http.Response, destDir, name string, minBytes int64) (string, int64, error) {
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return "", 0, fmt.Errorf("got HTML instead of a file (Content-Type %s)", ct)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(destDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if n < minBytes {
		os.Remove(path)
		return "", 0, fmt.Errorf("file too small (%d bytes), likely an error page", n)
	}
	return path, n, nil
}

// DownloadToFile fetches url and saves it under destDir as name. Convenience
// wrapper over Fetcher.Get and SaveBody.
func (f *Fetcher) DownloadToFile(ctx context.Context, url, destDir, name string, minBytes int64) (string, int64, error) {
	resp, err := f.Get(ctx, url, nil, nil)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	return SaveBody(resp, destDir, name, minBytes)
}

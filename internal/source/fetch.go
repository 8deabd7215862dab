// file: internal/source/fetch.go
// version: 1.1.0
// guid: 7a3e5c1d-9b2f-4d6a-8e0c-5f1a3b7d9e2c

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserAgent is sent on every outbound request. Scrape targets block the Go
// default agent outright.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Fetcher is a shared HTTP helper for source adapters: one client, a common
// User-Agent, and a polite per-host rate limit so parallel searches do not
// hammer a single site.
type Fetcher struct {
	client   *http.Client
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// NewFetcher creates a Fetcher. timeout bounds each request end to end;
// perHostRPS limits request rate per host.
func NewFetcher(timeout time.Duration, perHostRPS float64) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if perHostRPS <= 0 {
		perHostRPS = 4
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(perHostRPS),
		burst:    2,
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.limiters[host]
	if l == nil {
		l = rate.NewLimiter(f.perHost, f.burst)
		f.limiters[host] = l
	}
	return l
}

// Get performs a rate-limited GET with the shared User-Agent. headers may be
// nil. The caller owns the response body.
func (f *Fetcher) Get(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bad url %q: %w", rawURL, err)
	}
	if params != nil {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return f.client.Do(req)
}

// GetString performs Get and reads the whole body as a string. Non-2xx
// statuses are returned as errors.
func (f *Fetcher) GetString(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (string, error) {
	resp, err := f.Get(ctx, rawURL, params, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// file: internal/download/qbittorrent.go
// version: 1.4.0
// guid: 8a0c2e4f-5b7d-4c9d-a1b3-6c8e0a2c4e5b

package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JeremiahM37/librarr/internal/config"
)

const (
	loginBackoffInitial = 3 * time.Second
	loginBackoffMax     = 60 * time.Second
	banCooldown         = 60 * time.Second
	authFailCooldown    = 30 * time.Second
)

// lastError classifies the most recent qBittorrent failure for diagnostics.
type lastError struct {
	kind    string
	message string
	at      time.Time
}

// QBittorrentClient implements TorrentClient against the qBittorrent Web
// API. Login failures back off exponentially, and a detected IP ban pauses
// all login attempts for a cooldown window so we do not dig the hole deeper.
type QBittorrentClient struct {
	http *http.Client

	mu             sync.Mutex
	authenticated  bool
	banUntil       time.Time
	nextLoginAfter time.Time
	loginBackoff   time.Duration
	lastErr        *lastError
}

// NewQBittorrentClient creates a client using the global qBittorrent config.
func NewQBittorrentClient() *QBittorrentClient {
	jar, _ := cookiejar.New(nil)
	return &QBittorrentClient{
		http:         &http.Client{Jar: jar, Timeout: 15 * time.Second},
		loginBackoff: loginBackoffInitial,
	}
}

func (c *QBittorrentClient) cfg() *config.QBittorrentConfig { return &config.AppConfig.QBittorrent }

func (c *QBittorrentClient) setLastError(kind, message string) {
	c.lastErr = &lastError{kind: kind, message: message, at: time.Now()}
}

func classifyError(err error) (string, string) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "Client.Timeout"):
		return "timeout", "Timed out connecting to qBittorrent"
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return "unreachable", "Connection refused/unreachable — is qBittorrent running?"
	}
	return "request_error", msg
}

// login authenticates with the Web API. Callers hold c.mu.
func (c *QBittorrentClient) login(ctx context.Context) bool {
	if !config.AppConfig.HasQBittorrent() {
		c.setLastError("not_configured", "qBittorrent not configured")
		return false
	}
	now := time.Now()
	if now.Before(c.nextLoginAfter) {
		c.setLastError("cooldown", "Skipping qBittorrent login during backoff")
		return false
	}

	form := url.Values{"username": {c.cfg().Username}, "password": {c.cfg().Password}}
	body, status, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		kind, msg := classifyError(err)
		log.Printf("[ERROR] qBittorrent login failed: %v", err)
		c.authenticated = false
		c.nextLoginAfter = now.Add(c.loginBackoff)
		c.loginBackoff = min(loginBackoffMax, c.loginBackoff*2)
		c.setLastError(kind, msg)
		return false
	}
	if strings.Contains(strings.ToLower(body), "banned") {
		log.Printf("[ERROR] qBittorrent: IP banned, backing off for %s", banCooldown)
		c.authenticated = false
		c.banUntil = now.Add(banCooldown)
		c.nextLoginAfter = c.banUntil
		c.setLastError("ip_banned", "IP banned by qBittorrent")
		return false
	}
	c.authenticated = status == http.StatusOK && body == "Ok."
	if !c.authenticated {
		log.Printf("[ERROR] qBittorrent login failed: %q", body)
		c.banUntil = now.Add(authFailCooldown)
		c.nextLoginAfter = c.banUntil
		c.setLastError("auth_failed", "Login failed — check username/password")
		return false
	}
	c.nextLoginAfter = time.Time{}
	c.loginBackoff = loginBackoffInitial
	c.lastErr = nil
	return true
}

// ensureAuth logs in if needed, honoring the ban cooldown. Callers hold c.mu.
func (c *QBittorrentClient) ensureAuth(ctx context.Context) bool {
	if c.authenticated {
		return true
	}
	if time.Now().Before(c.banUntil) {
		log.Printf("[WARN] qBittorrent: skipping login attempt, still in cooldown")
		c.setLastError("cooldown", "Skipping login attempt during cooldown")
		return false
	}
	return c.login(ctx)
}

func (c *QBittorrentClient) postForm(ctx context.Context, path string, form url.Values) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg().URL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return string(body), resp.StatusCode, err
}

func (c *QBittorrentClient) get(ctx context.Context, path string, params url.Values) (string, int, error) {
	u := c.cfg().URL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	return string(body), resp.StatusCode, err
}

// AddTorrent hands a magnet or .torrent URL to qBittorrent. A 403 triggers
// one re-login and retry; sessions expire server-side.
func (c *QBittorrentClient) AddTorrent(ctx context.Context, urlOrMagnet, savePath, category string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureAuth(ctx) {
		return c.lastErrOrDefault("not authenticated with qBittorrent")
	}
	if savePath == "" {
		savePath = c.cfg().SavePath
	}
	if category == "" {
		category = c.cfg().Category
	}
	form := url.Values{"urls": {urlOrMagnet}, "savepath": {savePath}, "category": {category}}

	body, status, err := c.postForm(ctx, "/api/v2/torrents/add", form)
	if err == nil && status == http.StatusForbidden {
		c.login(ctx)
		body, status, err = c.postForm(ctx, "/api/v2/torrents/add", form)
	}
	if err != nil {
		kind, msg := classifyError(err)
		c.setLastError(kind, msg)
		return fmt.Errorf("qBittorrent add failed: %s", msg)
	}
	if body != "Ok." {
		if status == http.StatusForbidden {
			c.setLastError("auth_failed", "qBittorrent rejected add_torrent request (403)")
		} else {
			c.setLastError(fmt.Sprintf("http_%d", status), fmt.Sprintf("qBittorrent add_torrent returned HTTP %d", status))
		}
		return fmt.Errorf("qBittorrent rejected torrent (HTTP %d)", status)
	}
	c.lastErr = nil
	return nil
}

// Torrents lists torrents, optionally filtered by category.
func (c *QBittorrentClient) Torrents(ctx context.Context, category string) ([]Torrent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureAuth(ctx) {
		return nil, c.lastErrOrDefault("not authenticated with qBittorrent")
	}
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	body, status, err := c.get(ctx, "/api/v2/torrents/info", params)
	if err == nil && status == http.StatusForbidden {
		c.login(ctx)
		body, status, err = c.get(ctx, "/api/v2/torrents/info", params)
	}
	if err != nil {
		kind, msg := classifyError(err)
		c.setLastError(kind, msg)
		return nil, fmt.Errorf("qBittorrent torrents/info failed: %s", msg)
	}
	if status != http.StatusOK {
		c.setLastError(fmt.Sprintf("http_%d", status), fmt.Sprintf("qBittorrent torrents/info returned HTTP %d", status))
		return nil, fmt.Errorf("qBittorrent torrents/info returned HTTP %d", status)
	}
	var torrents []Torrent
	if err := json.Unmarshal([]byte(body), &torrents); err != nil {
		return nil, fmt.Errorf("bad torrents/info response: %w", err)
	}
	c.lastErr = nil
	return torrents, nil
}

// DeleteTorrent removes a torrent and optionally its files.
func (c *QBittorrentClient) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureAuth(ctx) {
		return c.lastErrOrDefault("not authenticated with qBittorrent")
	}
	form := url.Values{"hashes": {hash}, "deleteFiles": {fmt.Sprintf("%t", deleteFiles)}}
	_, status, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
	if err == nil && status == http.StatusForbidden {
		c.login(ctx)
		_, status, err = c.postForm(ctx, "/api/v2/torrents/delete", form)
	}
	if err != nil {
		kind, msg := classifyError(err)
		c.setLastError(kind, msg)
		return fmt.Errorf("qBittorrent delete failed: %s", msg)
	}
	if status != http.StatusOK {
		c.setLastError(fmt.Sprintf("http_%d", status), fmt.Sprintf("qBittorrent delete_torrent returned HTTP %d", status))
		return fmt.Errorf("qBittorrent delete returned HTTP %d", status)
	}
	c.lastErr = nil
	return nil
}

// Diagnose checks connectivity, authentication, and API version.
func (c *QBittorrentClient) Diagnose(ctx context.Context) Diagnosis {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !config.AppConfig.HasQBittorrent() {
		return Diagnosis{ErrorClass: "not_configured", Error: "qBittorrent not configured"}
	}
	now := time.Now()
	if now.Before(c.banUntil) {
		return Diagnosis{ErrorClass: "cooldown", Error: "qBittorrent login cooldown active",
			RetryInSec: int(c.banUntil.Sub(now).Seconds())}
	}
	if !c.authenticated && now.Before(c.nextLoginAfter) {
		return Diagnosis{ErrorClass: "cooldown", Error: "qBittorrent login backoff active",
			RetryInSec: int(c.nextLoginAfter.Sub(now).Seconds())}
	}
	if !c.ensureAuth(ctx) {
		d := Diagnosis{ErrorClass: "auth_failed", Error: "Login failed"}
		if c.lastErr != nil {
			d.ErrorClass = c.lastErr.kind
			d.Error = c.lastErr.message
		}
		return d
	}
	body, status, err := c.get(ctx, "/api/v2/app/version", nil)
	if err != nil {
		kind, msg := classifyError(err)
		c.setLastError(kind, msg)
		return Diagnosis{ErrorClass: kind, Error: msg}
	}
	if status == http.StatusForbidden {
		c.authenticated = false
		c.setLastError("auth_failed", "qBittorrent rejected app/version (403)")
		return Diagnosis{ErrorClass: "auth_failed", Error: "Session expired or invalid credentials"}
	}
	if status != http.StatusOK {
		c.setLastError(fmt.Sprintf("http_%d", status), fmt.Sprintf("HTTP %d", status))
		return Diagnosis{ErrorClass: fmt.Sprintf("http_%d", status), Error: fmt.Sprintf("HTTP %d", status)}
	}
	c.lastErr = nil
	version := strings.TrimSpace(body)
	if version == "" {
		version = "unknown"
	}
	return Diagnosis{Success: true, Version: version}
}

func (c *QBittorrentClient) lastErrOrDefault(fallback string) error {
	if c.lastErr != nil {
		return fmt.Errorf("%s", c.lastErr.message)
	}
	return fmt.Errorf("%s", fallback)
}

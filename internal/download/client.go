// file: internal/download/client.go
// version: 1.1.0
// guid: 6e8a0c2d-3f5b-4a7b-c9d1-4a6c8e0a2c3f

// Package download talks to the external torrent client that acquires
// torrent-kind results.
package download

import "context"

// Torrent is one entry from the client's torrent list, in qBittorrent Web
// API field names.
type Torrent struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"`
	ContentPath string  `json:"content_path"`
	SavePath    string  `json:"save_path"`
	Category    string  `json:"category"`
}

// Diagnosis is the connectivity report surfaced on the settings page and in
// download preflight responses.
type Diagnosis struct {
	Success    bool   `json:"success"`
	Version    string `json:"version,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryInSec int    `json:"retry_in_sec,omitempty"`
}

// TorrentClient is the collaborator contract: hand off a magnet or .torrent
// URL, observe completion out-of-band via Torrents.
type TorrentClient interface {
	// AddTorrent hands a magnet link or .torrent URL to the client.
	AddTorrent(ctx context.Context, urlOrMagnet, savePath, category string) error
	// Torrents lists the client's torrents, optionally filtered by category.
	Torrents(ctx context.Context, category string) ([]Torrent, error)
	// DeleteTorrent removes a torrent and optionally its files.
	DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error
	// Diagnose checks connectivity and authentication.
	Diagnose(ctx context.Context) Diagnosis
}

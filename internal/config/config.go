// file: internal/config/config.go
// version: 1.3.0
// guid: 8c4d1f2e-7a5b-4c3d-9e0f-2b6a8d4c1e7f

// Package config holds application configuration loaded from viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// QBittorrentConfig holds connection settings for the qBittorrent Web API.
type QBittorrentConfig struct {
	URL               string
	Username          string
	Password          string
	SavePath          string
	Category          string
	AudiobookSavePath string
	AudiobookCategory string
}

// ProwlarrConfig holds connection settings for a Prowlarr indexer proxy.
type ProwlarrConfig struct {
	URL    string
	APIKey string
}

// KavitaConfig holds settings for the optional Kavita library target.
type KavitaConfig struct {
	LibraryPath string // second copy of organized ebooks lands here
	URL         string
	APIKey      string
}

// CalibreConfig holds settings for the optional Calibre-Web import target.
type CalibreConfig struct {
	LibraryPath  string
	CalibredbBin string
}

// SearchConfig bounds the aggregation fan-out.
type SearchConfig struct {
	SourceTimeout     time.Duration // per-source budget
	Deadline          time.Duration // total wall clock for an ebook search
	AudiobookDeadline time.Duration // audiobook indexers are slower
}

// DownloadConfig bounds individual acquisition attempts.
type DownloadConfig struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ScrapeTimeout   time.Duration // per scrape site
	MinDirectBytes  int64         // smaller direct downloads are rejected as truncated
	MinScrapedBytes int64         // scraped EPUBs below this are placeholder junk
	MaxCandidates   int           // fallback chain length (direct EPUBs and scrape sites)
	Workers         int           // concurrent download jobs
}

// HealthConfig tunes the per-source circuit breaker.
type HealthConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// Config holds application configuration
type Config struct {
	ListenAddr      string
	DatabasePath    string
	IncomingDir     string
	EbookDir        string
	AudiobookDir    string
	TorrentWatchDir string

	QBittorrent QBittorrentConfig
	Prowlarr    ProwlarrConfig
	Kavita      KavitaConfig
	Calibre     CalibreConfig
	Search      SearchConfig
	Download    DownloadConfig
	Health      HealthConfig
}

var AppConfig Config

// HasQBittorrent reports whether a qBittorrent endpoint is configured.
func (c *Config) HasQBittorrent() bool {
	return c.QBittorrent.URL != ""
}

// HasProwlarr reports whether Prowlarr search is configured.
func (c *Config) HasProwlarr() bool {
	return c.Prowlarr.URL != "" && c.Prowlarr.APIKey != ""
}

// InitConfig initializes the application configuration from viper.
func InitConfig() {
	viper.SetDefault("listen_addr", ":8286")
	viper.SetDefault("database_path", "data/librarr.db")
	viper.SetDefault("incoming_dir", "data/incoming")
	viper.SetDefault("ebook_dir", "data/ebooks")
	viper.SetDefault("audiobook_dir", "data/audiobooks")
	viper.SetDefault("search.source_timeout", "15s")
	viper.SetDefault("search.deadline", "35s")
	viper.SetDefault("search.audiobook_deadline", "60s")
	viper.SetDefault("download.connect_timeout", "15s")
	viper.SetDefault("download.read_timeout", "5m")
	viper.SetDefault("download.scrape_timeout", "30m")
	viper.SetDefault("download.min_direct_bytes", 1000)
	viper.SetDefault("download.min_scraped_bytes", 500_000)
	viper.SetDefault("download.max_candidates", 3)
	viper.SetDefault("download.workers", 4)
	viper.SetDefault("health.failure_threshold", 3)
	viper.SetDefault("health.open_duration", "5m")
	viper.SetDefault("qbittorrent.save_path", "/downloads/books")
	viper.SetDefault("qbittorrent.category", "librarr")
	viper.SetDefault("qbittorrent.audiobook_save_path", "/downloads/audiobooks")
	viper.SetDefault("qbittorrent.audiobook_category", "librarr-audio")
	viper.SetDefault("calibre.calibredb_bin", "calibredb")

	AppConfig = Config{
		ListenAddr:      viper.GetString("listen_addr"),
		DatabasePath:    viper.GetString("database_path"),
		IncomingDir:     viper.GetString("incoming_dir"),
		EbookDir:        viper.GetString("ebook_dir"),
		AudiobookDir:    viper.GetString("audiobook_dir"),
		TorrentWatchDir: viper.GetString("torrent_watch_dir"),
		QBittorrent: QBittorrentConfig{
			URL:               viper.GetString("qbittorrent.url"),
			Username:          viper.GetString("qbittorrent.username"),
			Password:          viper.GetString("qbittorrent.password"),
			SavePath:          viper.GetString("qbittorrent.save_path"),
			Category:          viper.GetString("qbittorrent.category"),
			AudiobookSavePath: viper.GetString("qbittorrent.audiobook_save_path"),
			AudiobookCategory: viper.GetString("qbittorrent.audiobook_category"),
		},
		Prowlarr: ProwlarrConfig{
			URL:    viper.GetString("prowlarr.url"),
			APIKey: viper.GetString("prowlarr.api_key"),
		},
		Kavita: KavitaConfig{
			LibraryPath: viper.GetString("kavita.library_path"),
			URL:         viper.GetString("kavita.url"),
			APIKey:      viper.GetString("kavita.api_key"),
		},
		Calibre: CalibreConfig{
			LibraryPath:  viper.GetString("calibre.library_path"),
			CalibredbBin: viper.GetString("calibre.calibredb_bin"),
		},
		Search: SearchConfig{
			SourceTimeout:     viper.GetDuration("search.source_timeout"),
			Deadline:          viper.GetDuration("search.deadline"),
			AudiobookDeadline: viper.GetDuration("search.audiobook_deadline"),
		},
		Download: DownloadConfig{
			ConnectTimeout:  viper.GetDuration("download.connect_timeout"),
			ReadTimeout:     viper.GetDuration("download.read_timeout"),
			ScrapeTimeout:   viper.GetDuration("download.scrape_timeout"),
			MinDirectBytes:  viper.GetInt64("download.min_direct_bytes"),
			MinScrapedBytes: viper.GetInt64("download.min_scraped_bytes"),
			MaxCandidates:   viper.GetInt("download.max_candidates"),
			Workers:         viper.GetInt("download.workers"),
		},
		Health: HealthConfig{
			FailureThreshold: viper.GetInt("health.failure_threshold"),
			OpenDuration:     viper.GetDuration("health.open_duration"),
		},
	}
}

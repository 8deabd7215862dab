// file: internal/config/persistence_test.go
// version: 1.0.0
// guid: 5f1a3c2d-7e6b-4f0a-b1c2-8e6d4a2f0b5c

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	saved := AppConfig
	t.Cleanup(func() { AppConfig = saved })
	AppConfig = Config{DatabasePath: filepath.Join(t.TempDir(), "librarr.db")}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	isolate(t)
	AppConfig.QBittorrent.URL = "http://qb:8080"
	AppConfig.Prowlarr.URL = "http://prowlarr:9696"
	AppConfig.Prowlarr.APIKey = "secret"

	if err := SaveConfigToFile(); err != nil {
		t.Fatalf("SaveConfigToFile: %v", err)
	}

	// Fresh process: env vars left these blank.
	AppConfig.QBittorrent.URL = ""
	AppConfig.Prowlarr.URL = ""
	AppConfig.Prowlarr.APIKey = ""
	if err := LoadConfigFromFile(); err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if AppConfig.QBittorrent.URL != "http://qb:8080" || AppConfig.Prowlarr.APIKey != "secret" {
		t.Fatalf("saved settings not restored: %+v", AppConfig.QBittorrent)
	}
}

func TestLoadNeverOverridesEnvValues(t *testing.T) {
	isolate(t)
	AppConfig.QBittorrent.URL = "http://from-file:8080"
	if err := SaveConfigToFile(); err != nil {
		t.Fatal(err)
	}

	AppConfig.QBittorrent.URL = "http://from-env:8080"
	if err := LoadConfigFromFile(); err != nil {
		t.Fatal(err)
	}
	if AppConfig.QBittorrent.URL != "http://from-env:8080" {
		t.Fatal("file value overrode an explicitly set one")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	isolate(t)
	if err := LoadConfigFromFile(); err != nil {
		t.Fatalf("missing file must be silent: %v", err)
	}
}

func TestLoadCorruptFileIsTolerated(t *testing.T) {
	isolate(t)
	path := ConfigFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{{{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadConfigFromFile(); err != nil {
		t.Fatalf("corrupt file must be tolerated: %v", err)
	}
}

func TestSavedFileIsPrivate(t *testing.T) {
	isolate(t)
	AppConfig.QBittorrent.Password = "hunter2"
	if err := SaveConfigToFile(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(ConfigFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode %v, want 0600 (holds credentials)", info.Mode().Perm())
	}
}

// file: internal/config/persistence.go
// version: 1.1.0
// guid: 3e9f2a1b-6c4d-4e8f-a0b1-7d5c3f2e9a4b

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFilePath returns the path to the YAML config file next to the database.
func ConfigFilePath() string {
	if AppConfig.DatabasePath != "" {
		return filepath.Join(filepath.Dir(AppConfig.DatabasePath), "config.yaml")
	}
	return ""
}

// LoadConfigFromFile loads settings from the YAML config file as a fallback.
// File values only fill in gaps left by env vars and flags.
func LoadConfigFromFile() error {
	path := ConfigFilePath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig map[string]any
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		log.Printf("[WARN] Failed to parse config file %s: %v", path, err)
		return nil
	}

	applied := 0
	stringFallbacks := map[string]*string{
		"qbittorrent_url":      &AppConfig.QBittorrent.URL,
		"qbittorrent_username": &AppConfig.QBittorrent.Username,
		"qbittorrent_password": &AppConfig.QBittorrent.Password,
		"prowlarr_url":         &AppConfig.Prowlarr.URL,
		"prowlarr_api_key":     &AppConfig.Prowlarr.APIKey,
		"kavita_url":           &AppConfig.Kavita.URL,
		"kavita_api_key":       &AppConfig.Kavita.APIKey,
		"kavita_library_path":  &AppConfig.Kavita.LibraryPath,
		"calibre_library_path": &AppConfig.Calibre.LibraryPath,
	}
	for key, dest := range stringFallbacks {
		if *dest != "" {
			continue
		}
		if v, ok := fileConfig[key].(string); ok && v != "" {
			*dest = v
			applied++
		}
	}

	if applied > 0 {
		log.Printf("[INFO] Applied %d settings from %s", applied, path)
	}
	return nil
}

// SaveConfigToFile writes the current integration settings to the YAML config
// file so they survive a container rebuild.
func SaveConfigToFile() error {
	path := ConfigFilePath()
	if path == "" {
		return fmt.Errorf("no config file path available")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out := map[string]any{
		"qbittorrent_url":      AppConfig.QBittorrent.URL,
		"qbittorrent_username": AppConfig.QBittorrent.Username,
		"qbittorrent_password": AppConfig.QBittorrent.Password,
		"prowlarr_url":         AppConfig.Prowlarr.URL,
		"prowlarr_api_key":     AppConfig.Prowlarr.APIKey,
		"kavita_url":           AppConfig.Kavita.URL,
		"kavita_api_key":       AppConfig.Kavita.APIKey,
		"kavita_library_path":  AppConfig.Kavita.LibraryPath,
		"calibre_library_path": AppConfig.Calibre.LibraryPath,
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

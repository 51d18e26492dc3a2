// Package config loads the TOML configuration. Files are merged in priority
// order, last one wins, and everything has a usable default so an empty
// config (or none at all) still produces a working setup.
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/discolog/discolog/internal/models"
)

type Config struct {
	DatabasePath string `koanf:"database_path"`
	LogLevel     string `koanf:"log_level"` // trace, debug, info, warn, error

	Folders []FolderConfig `koanf:"folders"`

	Scanner ScannerConfig `koanf:"scanner"`
	Server  ServerConfig  `koanf:"server"`
}

// FolderConfig is one library root. Name is optional and defaults to the
// directory base name.
type FolderConfig struct {
	Path string `koanf:"path"`
	Name string `koanf:"name"`
}

// ScannerConfig holds scan tuning knobs.
type ScannerConfig struct {
	Workers int `koanf:"workers"` // metadata extraction goroutines (default: 4)
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Listen string `koanf:"listen"` // address for the API server (default: ":4533")
}

// Load reads configuration from the default search paths, then from explicit
// (if non-empty) on top. A missing explicit path is an error; missing default
// paths are not.
func Load(explicit string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}
	if explicit != "" {
		if err := k.Load(file.Provider(explicit), toml.Parser()); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(xdg.DataHome, "discolog", "catalog.db")
	}
	cfg.DatabasePath = expandPath(cfg.DatabasePath)

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Scanner.Workers <= 0 {
		cfg.Scanner.Workers = 4
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":4533"
	}

	for i := range cfg.Folders {
		cfg.Folders[i].Path = expandPath(cfg.Folders[i].Path)
		if cfg.Folders[i].Name == "" {
			cfg.Folders[i].Name = filepath.Base(cfg.Folders[i].Path)
		}
	}

	return cfg, nil
}

// MusicFolders converts the configured folder list into the form the catalog
// queries take.
func (c *Config) MusicFolders() []models.MusicFolder {
	folders := make([]models.MusicFolder, 0, len(c.Folders))
	for _, f := range c.Folders {
		folders = append(folders, models.MusicFolder{Path: f.Path, Name: f.Name})
	}
	return folders
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/discolog/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "discolog", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Package config provides configuration loading and structs for the booru server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/booru/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Gallery GalleryConfig `yaml:"gallery"`
	Auth    AuthConfig    `yaml:"auth"`
	Import  ImportConfig  `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the posts database and the tag index.
// Disabled selects a repository that fails every call with a configuration error.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	TagIndexPath string `yaml:"tag_index_path"`
	Disabled     bool   `yaml:"disabled"`
}

// GalleryConfig holds paging and tag listing settings.
type GalleryConfig struct {
	PageSize             int      `yaml:"page_size"`
	MaxPageSize          int      `yaml:"max_page_size"`
	TagLimit             int      `yaml:"tag_limit"`
	AutocompleteLimit    int      `yaml:"autocomplete_limit"`
	AutocompleteMinChars int      `yaml:"autocomplete_min_chars"`
	DefaultRatings       []string `yaml:"default_ratings"`
}

// Ratings returns DefaultRatings as a rating set.
func (g *GalleryConfig) Ratings() models.RatingSet {
	return models.ParseRatingSet(strings.Join(g.DefaultRatings, ","))
}

// AuthConfig holds the admin account and session settings.
type AuthConfig struct {
	AdminEmail         string        `yaml:"admin_email"`
	AdminPasswordHash  string        `yaml:"admin_password_hash"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute"`
}

// Enabled reports whether an admin account is configured.
func (a *AuthConfig) Enabled() bool {
	return a.AdminEmail != "" && a.AdminPasswordHash != ""
}

// ImportConfig holds the manifest directories imported and watched by the server.
type ImportConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to scan recursively; defaults to true when unset.
func (i *ImportConfig) RecursiveOrDefault() bool {
	if i.Recursive != nil {
		return *i.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.TagIndexPath = expandPath(cfg.Storage.TagIndexPath, configDir)
	for i := range cfg.Import.Directories {
		cfg.Import.Directories[i] = expandPath(cfg.Import.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Gallery.PageSize > c.Gallery.MaxPageSize {
		return fmt.Errorf("gallery page_size %d exceeds max_page_size %d", c.Gallery.PageSize, c.Gallery.MaxPageSize)
	}
	for _, r := range c.Gallery.DefaultRatings {
		if _, err := models.ParseRating(r); err != nil {
			return fmt.Errorf("gallery default_ratings: %w", err)
		}
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPasswordHash == "") {
		return fmt.Errorf("auth requires both admin_email and admin_password_hash")
	}
	for _, ext := range c.Import.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("import extension %q must start with a dot", ext)
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

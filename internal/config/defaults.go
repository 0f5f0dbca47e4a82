package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/booru/data/db/posts.db"
	}
	if cfg.Storage.TagIndexPath == "" {
		cfg.Storage.TagIndexPath = "/usr/local/var/booru/data/indices/tags.bleve"
	}
	if cfg.Gallery.PageSize == 0 {
		cfg.Gallery.PageSize = 50
	}
	if cfg.Gallery.MaxPageSize == 0 {
		cfg.Gallery.MaxPageSize = 100
	}
	if cfg.Gallery.TagLimit == 0 {
		cfg.Gallery.TagLimit = 30
	}
	if cfg.Gallery.AutocompleteLimit == 0 {
		cfg.Gallery.AutocompleteLimit = 10
	}
	if cfg.Gallery.AutocompleteMinChars == 0 {
		cfg.Gallery.AutocompleteMinChars = 2
	}
	if len(cfg.Gallery.DefaultRatings) == 0 {
		cfg.Gallery.DefaultRatings = []string{"safe"}
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.LoginRatePerMinute == 0 {
		cfg.Auth.LoginRatePerMinute = 5
	}
	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".json", ".yaml", ".yml", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Import.Directories) > 0 && cfg.Import.Recursive == nil {
		t := true
		cfg.Import.Recursive = &t
	}
}

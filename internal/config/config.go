// Package config handles configuration loading and validation. Values are
// layered: defaults, then an optional TOML file, then environment variables.
// Command-line flags are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"linkrelay/internal/media"
)

// ErrInvalid marks a configuration that must not be used. It is fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	BotToken       string  `toml:"bot_token"`
	APIEndpoint    string  `toml:"api_endpoint"` // custom Bot API server; empty for the public one
	OwnerID        int64   `toml:"owner_id"`
	AuthUsers      []int64 `toml:"auth_users"`
	DeveloperName  string  `toml:"developer_name"`
	SupportContact string  `toml:"support_contact"`

	DownloadDir    string `toml:"download_dir"`
	MaxFileSize    int64  `toml:"max_file_size"`
	Quality        string `toml:"quality"`
	DefaultCaption string `toml:"default_caption"`

	DatabaseURL string `toml:"database_url"`
	UsersFile   string `toml:"users_file"`

	BatchDelay          Duration `toml:"batch_delay"`
	BroadcastDelay      Duration `toml:"broadcast_delay"`
	ProgressInterval    Duration `toml:"progress_interval"`
	MaxLinksPerBatch    int      `toml:"max_links_per_batch"`
	AlternateExtensions []string `toml:"alternate_extensions"`
	DefaultReferer      string   `toml:"default_referer"`
	YTDLPPath           string   `toml:"ytdlp_path"`
	ExternalDownloader  string   `toml:"external_downloader"`

	HealthAddr string `toml:"health_addr"`
	Debug      bool   `toml:"debug"`

	// Warnings collects non-fatal problems found while loading, for the
	// caller to log once a logger exists.
	Warnings []string `toml:"-"`
}

// Duration lets TOML files carry values such as "2s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DeveloperName:       "linkrelay",
		SupportContact:      "@support",
		DownloadDir:         "./downloads",
		MaxFileSize:         2 << 30,
		Quality:             media.DefaultQuality.String(),
		DefaultCaption:      "🎬 {title}\n\n💝 Made by {developer}",
		UsersFile:           "users.json",
		BatchDelay:          Duration{2 * time.Second},
		BroadcastDelay:      Duration{500 * time.Millisecond},
		ProgressInterval:    Duration{3 * time.Second},
		MaxLinksPerBatch:    50,
		AlternateExtensions: []string{"mkv", "webm", "mp4", "ts"},
		DefaultReferer:      "https://web.classplusapp.com/",
		YTDLPPath:           "yt-dlp",
		HealthAddr:          ":8080",
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "linkrelay"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "linkrelay"), nil
}

// ConfigPath returns the path to the default config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (the XDG default when empty), overlays
// the environment and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables. Malformed numbers are rejected
// instead of silently falling back to the default.
func (c *Config) applyEnv() error {
	setString(&c.BotToken, "BOT_TOKEN")
	setString(&c.APIEndpoint, "TELEGRAM_API_ENDPOINT")
	setString(&c.DeveloperName, "DEVELOPER_NAME")
	setString(&c.SupportContact, "SUPPORT_CONTACT")
	setString(&c.DownloadDir, "DOWNLOAD_PATH")
	setString(&c.Quality, "DEFAULT_QUALITY")
	setString(&c.DefaultCaption, "DEFAULT_CAPTION")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.UsersFile, "USERS_FILE")
	setString(&c.YTDLPPath, "YTDLP_PATH")
	setString(&c.HealthAddr, "HEALTH_ADDR")
	if os.Getenv("MONGODB_URI") != "" {
		c.Warnings = append(c.Warnings, "MONGODB_URI is not supported and was ignored; set DATABASE_URL to a postgres:// or sqlite:// URL")
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv("HEALTH_ADDR") == "" {
		c.HealthAddr = ":" + port
	}

	if v := os.Getenv("OWNER_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: OWNER_ID %q is not a number", ErrInvalid, v)
		}
		c.OwnerID = id
	}

	if v := os.Getenv("AUTH_USERS"); v != "" {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("%w: AUTH_USERS: %v", ErrInvalid, err)
		}
		c.AuthUsers = ids
	}

	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: MAX_FILE_SIZE %q is not a number", ErrInvalid, v)
		}
		c.MaxFileSize = n
	}

	if v := os.Getenv("LINKRELAY_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: LINKRELAY_DEBUG %q is not a boolean", ErrInvalid, v)
		}
		c.Debug = b
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseIDList parses a comma-separated list of user IDs, skipping empty items.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a user id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if _, err := media.ParseQuality(c.Quality); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max file size must be positive", ErrInvalid)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download directory cannot be empty", ErrInvalid)
	}

	if c.MaxLinksPerBatch <= 0 {
		return fmt.Errorf("%w: max links per batch must be positive", ErrInvalid)
	}

	if c.BatchDelay.Duration < 0 || c.BroadcastDelay.Duration < 0 || c.ProgressInterval.Duration < 0 {
		return fmt.Errorf("%w: delays cannot be negative", ErrInvalid)
	}

	for _, ext := range c.AlternateExtensions {
		if ext == "" || strings.ContainsAny(ext, `./\`) {
			return fmt.Errorf("%w: alternate extension %q must be a bare extension", ErrInvalid, ext)
		}
	}

	return nil
}

// ValidateForServe adds the checks that only matter when running the bot.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BotToken == "" {
		return fmt.Errorf("%w: BOT_TOKEN is required", ErrInvalid)
	}
	if c.OwnerID == 0 {
		return fmt.Errorf("%w: OWNER_ID is required", ErrInvalid)
	}
	return nil
}

// DefaultQuality returns the parsed default tier. Validate guarantees it parses.
func (c *Config) DefaultQuality() media.Quality {
	q, err := media.ParseQuality(c.Quality)
	if err != nil {
		return media.DefaultQuality
	}
	return q
}

// IsAuthorized reports whether userID may trigger downloads.
func (c *Config) IsAuthorized(userID int64) bool {
	if userID == c.OwnerID {
		return true
	}
	for _, id := range c.AuthUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// EnsureDownloadDir expands the staging directory and creates it.
func (c *Config) EnsureDownloadDir() (string, error) {
	dir, err := c.ExpandDownloadDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	return dir, nil
}

// UsersPath returns the JSON user-directory path. Relative paths live under
// XDG_DATA_HOME (or ~/.local/share).
func (c *Config) UsersPath() (string, error) {
	if filepath.IsAbs(c.UsersFile) {
		return c.UsersFile, nil
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "linkrelay", c.UsersFile), nil
}

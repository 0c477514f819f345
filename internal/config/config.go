package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// CSFD contains configuration for the rating site scraper and retry policy.
type CSFD struct {
	Enabled                     bool   `toml:"enabled"`
	BaseURL                     string `toml:"base_url"`
	RequestDelayMs              int    `toml:"request_delay_ms"`
	MaxRetries                  int    `toml:"max_retries"`
	CooldownMinMinutes          int    `toml:"cooldown_min_minutes"`
	ThrottleBackoffCapMinutes   int    `toml:"throttle_backoff_cap_minutes"`
	TransientBackoffCapMinutes  int    `toml:"transient_backoff_cap_minutes"`
	ThrottleDefaultSleepSeconds int    `toml:"throttle_default_sleep_seconds"`
	RequestTimeoutSeconds       int    `toml:"request_timeout_seconds"`
	FailureJournal              bool   `toml:"failure_journal"`
}

// Jellyfin contains configuration for the Jellyfin library the ratings are
// resolved for.
type Jellyfin struct {
	URL                   string `toml:"url"`
	APIKey                string `toml:"api_key"`
	UserID                string `toml:"user_id"`
	BreakerFailures       int    `toml:"breaker_failures"`
	BreakerTimeoutSeconds int    `toml:"breaker_timeout_seconds"`
}

// Cache contains configuration for the persisted rating cache.
type Cache struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Queue contains configuration for the fetch queue worker.
type Queue struct {
	PausePollMs int `toml:"pause_poll_ms"`
}

// Overlay contains configuration for web client script injection.
type Overlay struct {
	InjectionEnabled bool   `toml:"injection_enabled"`
	WebRoot          string `toml:"web_root"`
	// PublicURL is the daemon address as seen by browsers. Defaults to
	// http://<api_bind>.
	PublicURL string `toml:"public_url"`
}

// API contains configuration for the HTTP API surface.
type API struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for csfdoverlay.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - CSFD: scraper endpoint, request pacing, and retry policy
//   - Jellyfin: library item source
//   - Cache: rating cache backend and location
//   - Queue: fetch worker timing
//   - Overlay: web client injection
//   - API: HTTP API request limits
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	CSFD     CSFD     `toml:"csfd"`
	Jellyfin Jellyfin `toml:"jellyfin"`
	Cache    Cache    `toml:"cache"`
	Queue    Queue    `toml:"queue"`
	Overlay  Overlay  `toml:"overlay"`
	API      API      `toml:"api"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/csfdoverlay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("csfdoverlay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if strings.TrimSpace(c.Cache.Path) != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestDelay is the minimum interval between two remote calls.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.CSFD.RequestDelayMs) * time.Millisecond
}

// MinCooldown is the cooldown applied on the first throttle signal without a
// Retry-After hint.
func (c *Config) MinCooldown() time.Duration {
	return time.Duration(c.CSFD.CooldownMinMinutes) * time.Minute
}

// ThrottleBackoffCap bounds the escalating throttle cooldown.
func (c *Config) ThrottleBackoffCap() time.Duration {
	return time.Duration(c.CSFD.ThrottleBackoffCapMinutes) * time.Minute
}

// TransientBackoffCap bounds the per-item retry delay after transient failures.
func (c *Config) TransientBackoffCap() time.Duration {
	return time.Duration(c.CSFD.TransientBackoffCapMinutes) * time.Minute
}

// ThrottleDefaultSleep is the queue pause after a throttle without Retry-After.
func (c *Config) ThrottleDefaultSleep() time.Duration {
	return time.Duration(c.CSFD.ThrottleDefaultSleepSeconds) * time.Second
}

// RequestTimeout is the HTTP timeout for a single remote call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.CSFD.RequestTimeoutSeconds) * time.Second
}

// PausePollInterval is how often a paused queue worker checks for resume.
func (c *Config) PausePollInterval() time.Duration {
	return time.Duration(c.Queue.PausePollMs) * time.Millisecond
}

// FailureJournalPath is the JSONL file remote failures are appended to.
func (c *Config) FailureJournalPath() string {
	return filepath.Join(c.Paths.DataDir, defaultFailureJournalName)
}

// LockPath is the flock file guarding against a second daemon instance.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "csfdoverlay.lock")
}

// CachePath is the rating cache location for the configured backend.
func (c *Config) CachePath() string {
	if strings.TrimSpace(c.Cache.Path) != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Paths.DataDir, cacheFileName(c.Cache.Backend))
}

// OverlayScriptURL is the script src injected into the web client.
func (c *Config) OverlayScriptURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Overlay.PublicURL), "/")
	if base == "" {
		base = "http://" + c.Paths.APIBind
	}
	return base + "/web/overlay.js"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCSFD()
	c.normalizeJellyfin()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeOverlay(); err != nil {
		return err
	}
	if c.Queue.PausePollMs <= 0 {
		c.Queue.PausePollMs = defaultPausePollMs
	}
	if c.API.RequestsPerMinute <= 0 {
		c.API.RequestsPerMinute = defaultRequestsPerMinute
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CSFDOVERLAY_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCSFD() {
	c.CSFD.BaseURL = strings.TrimRight(strings.TrimSpace(c.CSFD.BaseURL), "/")
	if c.CSFD.BaseURL == "" {
		c.CSFD.BaseURL = defaultCSFDBaseURL
	}
	if c.CSFD.ThrottleBackoffCapMinutes <= 0 {
		c.CSFD.ThrottleBackoffCapMinutes = defaultThrottleBackoffCapMinutes
	}
	if c.CSFD.TransientBackoffCapMinutes <= 0 {
		c.CSFD.TransientBackoffCapMinutes = defaultTransientBackoffCapMinutes
	}
	if c.CSFD.ThrottleDefaultSleepSeconds <= 0 {
		c.CSFD.ThrottleDefaultSleepSeconds = defaultThrottleDefaultSleepSeconds
	}
	if c.CSFD.RequestTimeoutSeconds <= 0 {
		c.CSFD.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeJellyfin() {
	if c.Jellyfin.URL == "" {
		if value, ok := os.LookupEnv("JELLYFIN_URL"); ok {
			c.Jellyfin.URL = value
		}
	}
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
	c.Jellyfin.UserID = strings.TrimSpace(c.Jellyfin.UserID)
	if c.Jellyfin.BreakerFailures <= 0 {
		c.Jellyfin.BreakerFailures = defaultBreakerFailures
	}
	if c.Jellyfin.BreakerTimeoutSeconds <= 0 {
		c.Jellyfin.BreakerTimeoutSeconds = defaultBreakerTimeoutSeconds
	}
}

func (c *Config) normalizeCache() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = filepath.Join(c.Paths.DataDir, cacheFileName(c.Cache.Backend))
		return nil
	}
	var err error
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	return nil
}

func cacheFileName(backend string) string {
	switch backend {
	case CacheBackendBolt:
		return "csfd_cache.bolt"
	case CacheBackendJSON:
		return "csfd_cache.json"
	default:
		return "csfd_cache.db"
	}
}

func (c *Config) normalizeOverlay() error {
	c.Overlay.PublicURL = strings.TrimSpace(c.Overlay.PublicURL)
	if strings.TrimSpace(c.Overlay.WebRoot) == "" {
		c.Overlay.WebRoot = ""
		return nil
	}
	var err error
	if c.Overlay.WebRoot, err = expandPath(c.Overlay.WebRoot); err != nil {
		return fmt.Errorf("overlay.web_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package testsupport

import (
	"path/filepath"
	"testing"

	"csfdoverlay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Remote pacing is disabled so tests never sleep between requests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Jellyfin.URL = "http://127.0.0.1:8096"
	cfgVal.Jellyfin.APIKey = "test"
	cfgVal.CSFD.RequestDelayMs = 0
	cfgVal.CSFD.FailureJournal = false
	cfgVal.Queue.PausePollMs = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if builder.cfg.Cache.Path == "" {
		builder.cfg.Cache.Path = builder.cfg.CachePath()
	}

	return builder.cfg
}

// WithCacheBackend selects the cache backend on the test config.
func WithCacheBackend(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Backend = kind
	}
}

// WithJellyfinURL points the library source at url.
func WithJellyfinURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jellyfin.URL = url
	}
}

// WithCSFDBaseURL points the remote client at url.
func WithCSFDBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.CSFD.BaseURL = url
	}
}

// WithAPIToken enables bearer authentication on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithWebRoot sets the web client directory used for overlay injection.
func WithWebRoot(dir string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Overlay.WebRoot = dir
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

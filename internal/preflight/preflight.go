package preflight

import (
	"context"
	"path/filepath"

	"csfdoverlay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Cache directory", filepath.Dir(cfg.CachePath())),
		CheckJellyfin(ctx, cfg.Jellyfin.URL, cfg.Jellyfin.APIKey),
	}

	if cfg.CSFD.Enabled {
		results = append(results, CheckRemote(ctx, cfg.CSFD.BaseURL))
	}

	if cfg.Overlay.InjectionEnabled && cfg.Overlay.WebRoot != "" {
		results = append(results, CheckWebRoot(cfg.Overlay.WebRoot))
	}

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

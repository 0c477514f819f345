package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"csfdoverlay/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckJellyfin_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckJellyfin(context.Background(), srv.URL, "good-key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckJellyfin_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckJellyfin(context.Background(), srv.URL, "bad-key")
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckJellyfin_MissingSettings(t *testing.T) {
	if CheckJellyfin(context.Background(), "", "key").Passed {
		t.Fatal("expected failure for missing URL")
	}
	if CheckJellyfin(context.Background(), "http://localhost", "").Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestCheckRemote(t *testing.T) {
	tests := []struct {
		name   string
		status int
		passed bool
	}{
		{name: "ok", status: http.StatusOK, passed: true},
		{name: "redirect", status: http.StatusNotModified, passed: true},
		{name: "throttled", status: http.StatusTooManyRequests},
		{name: "server error", status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := CheckRemote(context.Background(), srv.URL)
			if result.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (%s)", result.Passed, tt.passed, result.Detail)
			}
		})
	}
}

func TestCheckWebRoot(t *testing.T) {
	dir := t.TempDir()
	if CheckWebRoot(dir).Passed {
		t.Fatal("expected failure without index.html")
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckWebRoot(dir); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_SkipsDisabledFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithJellyfinURL(srv.URL))
	cfg.CSFD.Enabled = false
	cfg.Overlay.WebRoot = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("expected no failures")
	}
}

func TestRunAll_IncludesRemoteAndWebRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	webRoot := t.TempDir()
	cfg := testsupport.NewConfig(t,
		testsupport.WithJellyfinURL(srv.URL),
		testsupport.WithCSFDBaseURL(srv.URL),
		testsupport.WithWebRoot(webRoot),
	)
	cfg.CSFD.Enabled = true
	cfg.Overlay.InjectionEnabled = true
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	names := map[string]Result{}
	for _, r := range results {
		names[r.Name] = r
	}
	if r, ok := names["CSFD"]; !ok || !r.Passed {
		t.Fatalf("expected passing CSFD check, got %+v", r)
	}
	if r, ok := names["Web client"]; !ok || r.Passed {
		t.Fatalf("expected failing web client check without index.html, got %+v", r)
	}
	if !Failed(results) {
		t.Fatal("expected Failed to report the web client check")
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeDoctorConfig(t *testing.T, jellyfinURL string) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[jellyfin]
url = %q
api_key = "test"

[csfd]
enabled = false

[overlay]
injection_enabled = false
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), jellyfinURL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDoctorCommandPasses(t *testing.T) {
	jf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer jf.Close()
	configPath := writeDoctorConfig(t, jf.URL)

	out, _, err := runCLI(t, []string{"doctor"}, configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "== Readiness ==")
	requireContains(t, out, "Data directory:")
	requireContains(t, out, "Jellyfin:")
	requireContains(t, out, "[OK] Reachable")
}

func TestDoctorCommandReportsFailures(t *testing.T) {
	jf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer jf.Close()
	configPath := writeDoctorConfig(t, jf.URL)

	out, _, err := runCLI(t, []string{"--json", "doctor"}, configPath)
	if err == nil {
		t.Fatal("expected doctor to fail on rejected api key")
	}
	var results []doctorResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	var jellyfin *doctorResult
	for i := range results {
		if results[i].Name == "Jellyfin" {
			jellyfin = &results[i]
		}
	}
	if jellyfin == nil || jellyfin.Passed {
		t.Fatalf("expected failing Jellyfin result, got %+v", results)
	}
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"csfdoverlay/internal/config"
	"csfdoverlay/internal/daemonrun"
	"csfdoverlay/internal/library"
)

type cliTestEnv struct {
	cfg        *config.Config
	runtime    *daemonrun.Runtime
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("CSFDOVERLAY_API_TOKEN", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base, "127.0.0.1:1")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	source := library.NewMemory(
		library.Item{ID: "m1", Name: "Kolja", ProductionYear: 1996, Kind: library.KindMovie},
		library.Item{ID: "s1", Name: "Arabela", ProductionYear: 1979, Kind: library.KindSeries},
	)
	rt, err := daemonrun.Assemble(context.Background(), cfg, nil, source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	server := httptest.NewServer(rt.Daemon.Handler())
	writeTestConfig(t, configPath, base, server.Listener.Addr().String())

	t.Cleanup(func() {
		server.Close()
		_ = rt.Close()
	})
	return &cliTestEnv{cfg: cfg, runtime: rt, server: server, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path, base, bind string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = %q

[jellyfin]
url = "http://127.0.0.1:8096"
api_key = "test"

[csfd]
enabled = false
failure_journal = false

[cache]
backend = "json"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), bind)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

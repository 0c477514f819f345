package daemonrun_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"csfdoverlay/internal/api"
	"csfdoverlay/internal/daemonrun"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/testsupport"
)

func TestAssembleWiresRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.CSFD.Enabled = false
	source := library.NewMemory(library.Item{ID: "m1", Name: "Kolja", Kind: library.KindMovie})

	rt, err := daemonrun.Assemble(context.Background(), cfg, nil, source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	rec := httptest.NewRecorder()
	rt.Daemon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/csfd/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var status api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.TotalLibraryItems != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = httptest.NewRecorder()
	rt.Daemon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/csfd/items/m1", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAssembleRequiresLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJellyfinURL(""))
	if _, err := daemonrun.Assemble(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected configuration error without a jellyfin url")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

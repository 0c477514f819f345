package jellyfin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"csfdoverlay/internal/library"
	"csfdoverlay/internal/services"
	"csfdoverlay/internal/services/jellyfin"
	"csfdoverlay/internal/testsupport"
)

func writeItems(t *testing.T, w http.ResponseWriter, items ...map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"Items": items, "TotalRecordCount": len(items)}); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestGetSendsTokenAndMapsItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/u1/Items" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if token := r.Header.Get("X-Emby-Token"); token != "token-123" {
			t.Errorf("unexpected token: %q", token)
		}
		if got := r.URL.Query().Get("Ids"); got != "abc" {
			t.Errorf("unexpected Ids: %q", got)
		}
		writeItems(t, w, map[string]any{
			"Id": "abc", "Name": "Kolja", "OriginalTitle": "Kolya", "ProductionYear": 1996,
			"Type": "Movie", "ProviderIds": map[string]string{"Imdb": "tt0116790"},
		})
	}))
	defer server.Close()

	source, err := jellyfin.New(jellyfin.Options{BaseURL: server.URL + "/", APIKey: "token-123", UserID: "u1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := source.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := library.Item{
		ID: "abc", Name: "Kolja", OriginalTitle: "Kolya", ProductionYear: 1996,
		Kind: library.KindMovie, ProviderIDs: map[string]string{"Imdb": "tt0116790"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissingItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Ids") == "gone" {
			http.NotFound(w, r)
			return
		}
		writeItems(t, w)
	}))
	defer server.Close()

	source, err := jellyfin.New(jellyfin.Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, id := range []string{"gone", "empty"} {
		if _, err := source.Get(context.Background(), id); !errors.Is(err, library.ErrNotFound) {
			t.Fatalf("Get(%s): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestListPaginatesAndFiltersKinds(t *testing.T) {
	const total = 501
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("IncludeItemTypes"); got != "Movie,Series" {
			t.Errorf("unexpected IncludeItemTypes: %q", got)
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("StartIndex"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("Limit"))
		var page []map[string]any
		for i := start; i < total && i < start+limit; i++ {
			page = append(page, map[string]any{"Id": strconv.Itoa(i), "Name": "Item", "Type": "Movie"})
		}
		writeItems(t, w, page...)
	}))
	defer server.Close()

	source, err := jellyfin.New(jellyfin.Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items, err := source.List(context.Background(), library.DefaultKinds...)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != total {
		t.Fatalf("expected %d items, got %d", total, len(items))
	}
	if items[total-1].ID != strconv.Itoa(total-1) {
		t.Fatalf("unexpected last item %+v", items[total-1])
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source, err := jellyfin.New(jellyfin.Options{BaseURL: server.URL, BreakerFailures: 2, BreakerTimeout: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := source.Get(context.Background(), "abc"); !errors.Is(err, services.ErrTransient) {
			t.Fatalf("attempt %d: expected transient error, got %v", i, err)
		}
	}
	_, err = source.Get(context.Background(), "abc")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error from open breaker, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("open breaker should not reach the server, calls=%d", got)
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	source, err := jellyfin.New(jellyfin.Options{BaseURL: server.URL, BreakerFailures: 1, BreakerTimeout: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := source.Get(context.Background(), "abc"); !errors.Is(err, library.ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected every call to reach the server, calls=%d", got)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJellyfinURL(""))
	if _, err := jellyfin.NewFromConfig(cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	cfg = testsupport.NewConfig(t)
	if _, err := jellyfin.NewFromConfig(cfg, nil); err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
}

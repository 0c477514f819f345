package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"csfdoverlay/internal/api"
	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/config"
	"csfdoverlay/internal/daemon"
	"csfdoverlay/internal/fetch"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/overlay"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/rating"
	"csfdoverlay/internal/testsupport"
)

type stubQueue struct {
	mu       sync.Mutex
	requests []fetch.Request
	paused   bool
	started  int
	stopped  int
}

func (q *stubQueue) Enqueue(req fetch.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return nil
}

func (q *stubQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

func (q *stubQueue) Pause()  { q.mu.Lock(); q.paused = true; q.mu.Unlock() }
func (q *stubQueue) Resume() { q.mu.Lock(); q.paused = false; q.mu.Unlock() }

func (q *stubQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *stubQueue) Start(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started++
	return nil
}

func (q *stubQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped++
}

type stubRemote struct{}

func (stubRemote) Search(context.Context, string) ([]matching.Candidate, error) {
	return []matching.Candidate{{RemoteID: "10135", Title: "Kolja", Year: 1996}}, nil
}

func (stubRemote) GetRating(context.Context, string) (int, error) { return 86, nil }

type fixture struct {
	cfg    *config.Config
	store  *cache.Store
	queue  *stubQueue
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	q := &stubQueue{}
	limiter := ratelimit.New(ratelimit.Config{MinCooldown: time.Minute})
	items := library.NewMemory(
		library.Item{ID: "m1", Name: "Kolja", ProductionYear: 1996, Kind: library.KindMovie},
		library.Item{ID: "m2", Name: "Obecná škola", ProductionYear: 1991, Kind: library.KindMovie},
	)
	svc, err := rating.NewService(rating.Options{
		Library: items,
		Store:   store,
		Queue:   q,
		Remote:  stubRemote{},
		Limiter: limiter,
	})
	if err != nil {
		t.Fatalf("rating.NewService: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Dependencies{Rating: svc, Queue: q, Limiter: limiter}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, queue: q, daemon: d}
}

func (f *fixture) serve(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.daemon.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestItemUnknownIsQueuedAndAccepted(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodGet, "/csfd/items/m1", "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[api.RatingData](t, rec)
	if got.Status != string(cache.StatusUnknown) {
		t.Fatalf("expected Unknown, got %+v", got)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("expected one queued request, got %d", f.queue.Len())
	}
	if rec.Header().Get(api.RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestItemResolvedReturnsRating(t *testing.T) {
	f := newFixture(t)
	percent := 86
	stars := 4.5
	testsupport.SeedEntry(t, f.store, cache.Entry{
		ItemID: "m1", Status: cache.StatusResolved, CSFDID: "10135",
		Percent: &percent, Stars: &stars, DisplayText: cache.DisplayText(stars),
	})
	rec := f.serve(t, http.MethodGet, "/csfd/items/m1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[api.RatingData](t, rec)
	want := api.RatingData{
		ItemID: "m1", Status: "Resolved", Percent: &percent, Stars: &stars,
		DisplayText: cache.DisplayText(stars), CSFDID: "10135",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rating mismatch (-want +got):\n%s", diff)
	}
	if f.queue.Len() != 0 {
		t.Fatal("cached item must not be queued")
	}
}

func TestBatchValidatesAndResolves(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodPost, "/csfd/items/batch", "", api.BatchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody[api.ErrorResponse](t, rec); got.Error != "itemIds required" {
		t.Fatalf("unexpected error message %q", got.Error)
	}

	rec = f.serve(t, http.MethodPost, "/csfd/items/batch", "", api.BatchRequest{ItemIDs: []string{"m1", "m2", "m1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[api.BatchResponse](t, rec)
	if len(got) != 2 || got["m2"].Status != "Unknown" {
		t.Fatalf("unexpected batch response %+v", got)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("secret"))

	if rec := f.serve(t, http.MethodGet, "/csfd/status", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.serve(t, http.MethodGet, "/csfd/status", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	rec := f.serve(t, http.MethodGet, "/csfd/status", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decodeBody[api.StatusResponse](t, rec)
	if status.TotalLibraryItems != 2 || !status.InjectionEnabled || status.Throttle != nil {
		t.Fatalf("unexpected status %+v", status)
	}

	if rec := f.serve(t, http.MethodGet, "/csfd/items/m1", "", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("overlay routes must stay public, got %d", rec.Code)
	}
}

func TestActions(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(t, http.MethodPost, "/csfd/actions/pause", "", nil)
	if got := decodeBody[api.ActionResponse](t, rec); got.Status != "paused" || !f.queue.Paused() {
		t.Fatalf("pause: %+v paused=%v", got, f.queue.Paused())
	}
	rec = f.serve(t, http.MethodPost, "/csfd/actions/resume", "", nil)
	if got := decodeBody[api.ActionResponse](t, rec); got.Status != "resumed" || f.queue.Paused() {
		t.Fatalf("resume: %+v", got)
	}

	rec = f.serve(t, http.MethodPost, "/csfd/actions/backfill", "", nil)
	got := decodeBody[api.ActionResponse](t, rec)
	if got.Enqueued == nil || *got.Enqueued != 2 {
		t.Fatalf("backfill: %+v", got)
	}

	rec = f.serve(t, http.MethodPost, "/csfd/actions/reset-cache", "", nil)
	if got := decodeBody[api.ActionResponse](t, rec); got.Status != "cleared" {
		t.Fatalf("reset-cache: %+v", got)
	}

	if rec := f.serve(t, http.MethodPost, "/csfd/actions/explode", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rec.Code)
	}
}

func TestSearchAndMatchValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(t, http.MethodPost, "/csfd/search", "", api.SearchRequest{Query: "  "})
	if got := decodeBody[api.ErrorResponse](t, rec); rec.Code != http.StatusBadRequest || got.Error != "Query required" {
		t.Fatalf("search: %d %+v", rec.Code, got)
	}
	rec = f.serve(t, http.MethodPost, "/csfd/search", "", api.SearchRequest{Query: "Kolja"})
	candidates := decodeBody[[]api.Candidate](t, rec)
	if len(candidates) != 1 || candidates[0].CSFDID != "10135" {
		t.Fatalf("unexpected candidates %+v", candidates)
	}

	rec = f.serve(t, http.MethodPost, "/csfd/match", "", api.MatchRequest{ItemID: "m1"})
	if got := decodeBody[api.ErrorResponse](t, rec); rec.Code != http.StatusBadRequest || got.Error != "ItemId and CsfdId required" {
		t.Fatalf("match validation: %d %+v", rec.Code, got)
	}
	rec = f.serve(t, http.MethodPost, "/csfd/match", "", api.MatchRequest{ItemID: "nope", CSFDID: "1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing library item, got %d", rec.Code)
	}
	rec = f.serve(t, http.MethodPost, "/csfd/match", "", api.MatchRequest{ItemID: "m1", CSFDID: "10135"})
	entry := decodeBody[api.CacheEntry](t, rec)
	if rec.Code != http.StatusOK || entry.Status != "Resolved" || entry.Percent == nil || *entry.Percent != 86 {
		t.Fatalf("match: %d %+v", rec.Code, entry)
	}

	rec = f.serve(t, http.MethodGet, "/csfd/entries/m1", "", nil)
	details := decodeBody[api.EntryDetails](t, rec)
	if rec.Code != http.StatusOK || details.LibraryTitle != "Kolja" {
		t.Fatalf("entry: %d %+v", rec.Code, details)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/csfd/items/batch", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.daemon.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOverlayScriptAndClientConfig(t *testing.T) {
	f := newFixture(t)
	rec := f.serve(t, http.MethodGet, "/web/overlay.js", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "javascript") {
		t.Fatalf("overlay script: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), overlay.Script()) {
		t.Fatal("served script differs from embedded script")
	}

	rec = f.serve(t, http.MethodGet, "/csfd/client-config", "", nil)
	if got := decodeBody[api.ClientConfig](t, rec); got.ClientCacheVersion <= 0 {
		t.Fatalf("unexpected client config %+v", got)
	}

	f.cfg.Overlay.InjectionEnabled = false
	rec = f.serve(t, http.MethodGet, "/web/overlay.js", "", nil)
	if got := decodeBody[api.ErrorResponse](t, rec); rec.Code != http.StatusForbidden || got.Error != "Overlay injection disabled" {
		t.Fatalf("disabled overlay: %d %+v", rec.Code, got)
	}
}

func TestRunServesAndPatchesWebClient(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	webRoot := t.TempDir()
	index := filepath.Join(webRoot, "index.html")
	if err := os.WriteFile(index, []byte("<html><head><title>Jellyfin</title></head><body></body></html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	f := newFixture(t, testsupport.WithWebRoot(webRoot))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if addr = f.daemon.Status().APIAddress; addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		cancel()
		t.Fatal("daemon did not start listening")
	}

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	transport.CloseIdleConnections()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	data, err := os.ReadFile(index)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !strings.Contains(string(data), overlay.Marker) {
		t.Fatalf("index not patched: %s", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if f.queue.started != 1 || f.queue.stopped != 1 {
		t.Fatalf("queue lifecycle start=%d stop=%d", f.queue.started, f.queue.stopped)
	}
	if f.daemon.Status().Running {
		t.Fatal("daemon still reports running")
	}
}

func TestRunRejectsSecondInstance(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.daemon.Status().APIAddress == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	other := newFixtureWithConfig(t, f.cfg)
	if err := other.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}
	cancel()
	<-done
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	q := &stubQueue{}
	limiter := ratelimit.New(ratelimit.Config{})
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc, err := rating.NewService(rating.Options{
		Library: library.NewMemory(),
		Store:   store,
		Queue:   q,
		Remote:  stubRemote{},
		Limiter: limiter,
	})
	if err != nil {
		t.Fatalf("rating.NewService: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Dependencies{Rating: svc, Queue: q, Limiter: limiter}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

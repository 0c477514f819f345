package fetch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/csfd"
	"csfdoverlay/internal/fetch"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/testsupport"
)

type fakeRemote struct {
	mu          sync.Mutex
	candidates  []matching.Candidate
	searchErr   error
	percent     int
	ratingErr   error
	searches    []string
	ratingCalls int
}

func (f *fakeRemote) Search(_ context.Context, query string) ([]matching.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

func (f *fakeRemote) GetRating(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingCalls++
	if f.ratingErr != nil {
		return 0, f.ratingErr
	}
	return f.percent, nil
}

func (f *fakeRemote) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type harness struct {
	processor *fetch.Processor
	store     *cache.Store
	library   *library.Memory
	remote    *fakeRemote
	limiter   *ratelimit.Limiter
}

func newHarness(t *testing.T, remote *fakeRemote, items ...library.Item) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	lib := library.NewMemory(items...)
	limiter := ratelimit.New(ratelimit.Config{MinCooldown: time.Minute})
	processor, err := fetch.NewProcessor(fetch.Options{
		Library: lib,
		Store:   store,
		Remote:  remote,
		Limiter: limiter,
		Policy:  cache.Policy{MaxRetries: 5, CooldownMin: 10 * time.Minute, BackoffCap: 120 * time.Minute},
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return &harness{processor: processor, store: store, library: lib, remote: remote, limiter: limiter}
}

var matrix = library.Item{
	ID:             "item-1",
	Name:           "Matrix",
	OriginalTitle:  "The Matrix",
	ProductionYear: 1999,
	Kind:           library.KindMovie,
	ProviderIDs:    map[string]string{"Imdb": "tt0133093"},
}

func TestResolvesRating(t *testing.T) {
	remote := &fakeRemote{
		candidates: []matching.Candidate{{RemoteID: "9499", Title: "Matrix", Year: 1999}},
		percent:    76,
	}
	h := newHarness(t, remote, matrix)

	result, err := h.processor.Process(context.Background(), fetch.Request{ItemID: matrix.ID})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != fetch.OutcomeSuccess {
		t.Fatalf("outcome mismatch: got %s, want success", result.Outcome)
	}
	entry, ok := h.store.Get(matrix.ID)
	if !ok {
		t.Fatal("entry not written")
	}
	if entry.Status != cache.StatusResolved || entry.CSFDID != "9499" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if *entry.Percent != 76 || *entry.Stars != 7.6 {
		t.Fatalf("rating mismatch: percent %d stars %v", *entry.Percent, *entry.Stars)
	}
	if entry.RetryAfter != nil || entry.LastError != "" || entry.AttemptCount != 1 {
		t.Fatalf("bookkeeping mismatch: %+v", entry)
	}
	if remote.searches[0] != "The Matrix" {
		t.Fatalf("query mismatch: got %q, want original title", remote.searches[0])
	}

	// Resolved entries are not looked up again.
	if _, err := h.processor.Process(context.Background(), fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if remote.searchCount() != 1 {
		t.Fatalf("resolved entry re-searched: %d searches", remote.searchCount())
	}
}

func TestNotFoundRevisitedOnlyOnMetadataChange(t *testing.T) {
	remote := &fakeRemote{}
	h := newHarness(t, remote, matrix)
	ctx := context.Background()

	if _, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	entry, _ := h.store.Get(matrix.ID)
	if entry.Status != cache.StatusNotFound || entry.QueryUsed != "The Matrix" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if _, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process unchanged: %v", err)
	}
	if remote.searchCount() != 1 {
		t.Fatalf("unchanged item re-searched: %d searches", remote.searchCount())
	}

	renamed := matrix
	renamed.OriginalTitle = "Matrix Reloaded"
	h.library.Put(renamed)
	if _, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process renamed: %v", err)
	}
	if remote.searchCount() != 2 {
		t.Fatalf("renamed item not re-searched: %d searches", remote.searchCount())
	}
	entry, _ = h.store.Get(matrix.ID)
	if entry.Fingerprint != matching.Fingerprint(renamed) {
		t.Fatal("fingerprint not refreshed")
	}
}

func TestThrottleLeavesCacheUntouched(t *testing.T) {
	remote := &fakeRemote{
		candidates: []matching.Candidate{{RemoteID: "9499", Title: "Matrix", Year: 1999}},
		ratingErr:  &csfd.ThrottleError{Op: csfd.OpDetails, Status: 429, RetryAfter: 30 * time.Second},
	}
	h := newHarness(t, remote, matrix)

	result, err := h.processor.Process(context.Background(), fetch.Request{ItemID: matrix.ID})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != fetch.OutcomeThrottled || result.RetryAfter != 30*time.Second {
		t.Fatalf("result mismatch: %+v", result)
	}
	if result.Message != "Details throttled: 429" {
		t.Fatalf("message mismatch: %q", result.Message)
	}
	if _, ok := h.store.Get(matrix.ID); ok {
		t.Fatal("throttle wrote a cache entry")
	}
	if snap := h.limiter.Snapshot(); snap.Backoff != 30*time.Second {
		t.Fatalf("limiter backoff mismatch: %v", snap.Backoff)
	}
}

func TestTransientFailuresBecomePermanent(t *testing.T) {
	remote := &fakeRemote{searchErr: &csfd.StatusError{Status: 500}}
	h := newHarness(t, remote, matrix)
	ctx := context.Background()

	for attempt := 1; attempt <= 5; attempt++ {
		result, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID, Force: true})
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		entry, _ := h.store.Get(matrix.ID)
		if entry.AttemptCount != attempt {
			t.Fatalf("attempt count mismatch: got %d, want %d", entry.AttemptCount, attempt)
		}
		if attempt < 5 {
			if result.Outcome != fetch.OutcomeTransient || entry.Status != cache.StatusErrorTransient {
				t.Fatalf("attempt %d: outcome %s status %s", attempt, result.Outcome, entry.Status)
			}
			if entry.RetryAfter == nil {
				t.Fatalf("attempt %d: retryAfter missing", attempt)
			}
			continue
		}
		if result.Outcome != fetch.OutcomePermanent || entry.Status != cache.StatusErrorPermanent {
			t.Fatalf("final: outcome %s status %s", result.Outcome, entry.Status)
		}
		if entry.RetryAfter != nil {
			t.Fatalf("final retryAfter should be nil, got %v", entry.RetryAfter)
		}
		if entry.LastError != "HTTP 500" {
			t.Fatalf("lastError mismatch: %q", entry.LastError)
		}
	}
}

func TestTransientBackoffSkipsUntilElapsed(t *testing.T) {
	remote := &fakeRemote{searchErr: csfd.ErrCaptcha}
	h := newHarness(t, remote, matrix)
	ctx := context.Background()

	if _, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process again: %v", err)
	}
	if remote.searchCount() != 1 {
		t.Fatalf("pending backoff ignored: %d searches", remote.searchCount())
	}
}

func TestMissingItemIsDropped(t *testing.T) {
	remote := &fakeRemote{}
	h := newHarness(t, remote)

	result, err := h.processor.Process(context.Background(), fetch.Request{ItemID: "ghost"})
	if err != nil || result.Outcome != fetch.OutcomeSuccess {
		t.Fatalf("unexpected result %+v, %v", result, err)
	}
	if remote.searchCount() != 0 || h.store.Len() != 0 {
		t.Fatal("missing item should not touch remote or cache")
	}
}

func TestCancelledAttemptWritesNothing(t *testing.T) {
	remote := &fakeRemote{searchErr: context.Canceled}
	h := newHarness(t, remote, matrix)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.processor.Process(ctx, fetch.Request{ItemID: matrix.ID})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.store.Len() != 0 {
		t.Fatal("cancelled attempt wrote to cache")
	}
}

func TestDisabledProcessorSkips(t *testing.T) {
	remote := &fakeRemote{}
	cfg := testsupport.NewConfig(t)
	processor, err := fetch.NewProcessor(fetch.Options{
		Library:  library.NewMemory(matrix),
		Store:    testsupport.MustOpenStore(t, cfg),
		Remote:   remote,
		Limiter:  ratelimit.New(ratelimit.Config{}),
		Disabled: true,
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	if _, err := processor.Process(context.Background(), fetch.Request{ItemID: matrix.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if remote.searchCount() != 0 {
		t.Fatal("disabled processor searched")
	}
}

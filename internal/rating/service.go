package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/csfd"
	"csfdoverlay/internal/fetch"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/services"
)

const manualQueryPrefix = "manual:"

// Queue is the slice of the fetch queue the service drives.
type Queue interface {
	Enqueue(req fetch.Request) error
	Len() int
	Pause()
	Resume()
	Paused() bool
}

// Options configure a Service.
type Options struct {
	Library library.Source
	Store   *cache.Store
	Queue   Queue
	Remote  fetch.Remote
	Limiter fetch.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service answers rating lookups and runs administrative sweeps.
type Service struct {
	library library.Source
	store   *cache.Store
	queue   Queue
	remote  fetch.Remote
	limiter fetch.Limiter
	logger  *slog.Logger
	now     func() time.Time

	clientCacheVersion atomic.Int64
}

// Rating is the overlay view of one item.
type Rating struct {
	ItemID      string
	Status      cache.Status
	Percent     *int
	Stars       *float64
	DisplayText string
	CSFDID      string
}

// Status summarizes the pipeline for operators.
type Status struct {
	QueueSize         int
	Paused            bool
	TotalLibraryItems int
	CacheStats        cache.Stats
}

// UnmatchedItem is a library item whose lookup ended without a rating.
type UnmatchedItem struct {
	ItemID        string
	Title         string
	OriginalTitle string
	Year          int
	Status        cache.Status
	LastError     string
}

// EntryDetails is a cache entry joined with its library metadata. The library
// fields are empty when the item no longer exists.
type EntryDetails struct {
	Entry        cache.Entry
	LibraryTitle string
	LibraryYear  int
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Library == nil:
		return nil, errors.New("rating service: library source required")
	case opts.Store == nil:
		return nil, errors.New("rating service: cache store required")
	case opts.Queue == nil:
		return nil, errors.New("rating service: fetch queue required")
	case opts.Remote == nil:
		return nil, errors.New("rating service: remote client required")
	case opts.Limiter == nil:
		return nil, errors.New("rating service: rate limiter required")
	}
	s := &Service{
		library: opts.Library,
		store:   opts.Store,
		queue:   opts.Queue,
		remote:  opts.Remote,
		limiter: opts.Limiter,
		logger:  logging.NewComponentLogger(opts.Logger, "rating"),
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.clientCacheVersion.Store(s.now().Unix())
	return s, nil
}

// Get returns the cached rating for itemID. Missing items are queued and
// reported as Unknown.
func (s *Service) Get(ctx context.Context, itemID string) (Rating, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Rating{}, services.Wrap(services.ErrValidation, "rating", "get", "item id required", nil)
	}
	entry, ok := s.store.Get(itemID)
	if !ok {
		s.enqueue(ctx, fetch.Request{ItemID: itemID})
		return Rating{ItemID: itemID, Status: cache.StatusUnknown}, nil
	}
	return fromEntry(entry), nil
}

// GetBatch resolves several ids at once. The result is keyed by the ids as
// given; duplicates collapse.
func (s *Service) GetBatch(ctx context.Context, itemIDs []string) (map[string]Rating, error) {
	ids := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrValidation, "rating", "batch", "itemIds required", nil)
	}
	found := s.store.GetMany(ids)
	out := make(map[string]Rating, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if entry, ok := found[id]; ok {
			out[id] = fromEntry(entry)
			continue
		}
		s.enqueue(ctx, fetch.Request{ItemID: id})
		out[id] = Rating{ItemID: id, Status: cache.StatusUnknown}
	}
	return out, nil
}

// Backfill queues every library item whose cached state calls for a new
// attempt and returns how many were queued.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	items, err := s.library.List(ctx, library.DefaultKinds...)
	if err != nil {
		return 0, fmt.Errorf("list library: %w", err)
	}
	now := s.now()
	count := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		fingerprint := matching.Fingerprint(item)
		if !cache.ShouldAttempt(s.store.Lookup(item.ID), fingerprint, false, now) {
			continue
		}
		if s.enqueue(ctx, fetch.Request{ItemID: item.ID, Fingerprint: fingerprint}) {
			count++
		}
	}
	s.logger.Info("backfill queued items",
		logging.Int("enqueued", count),
		logging.Int("library_items", len(items)),
	)
	return count, nil
}

// RetryNotFound force-queues every NotFound entry.
func (s *Service) RetryNotFound(ctx context.Context) (int, error) {
	return s.retry(ctx, "retry not-found entries", cache.StatusNotFound)
}

// RetryErrors force-queues every entry in an error state.
func (s *Service) RetryErrors(ctx context.Context) (int, error) {
	return s.retry(ctx, "retry failed entries", cache.StatusErrorTransient, cache.StatusErrorPermanent)
}

func (s *Service) retry(ctx context.Context, msg string, statuses ...cache.Status) (int, error) {
	count := 0
	for _, entry := range s.store.WithStatus(statuses...) {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if s.enqueue(ctx, fetch.Request{ItemID: entry.ItemID, Fingerprint: entry.Fingerprint, Force: true}) {
			count++
		}
	}
	s.logger.Info(msg, logging.Int("enqueued", count))
	return count, nil
}

// ClearCache drops every entry and bumps the client cache version so
// overlays discard what they hold.
func (s *Service) ClearCache(ctx context.Context) (int, error) {
	removed, err := s.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	version := s.bumpClientCacheVersion()
	s.logger.Info("rating cache cleared",
		logging.Int("removed", removed),
		logging.Int64("client_cache_version", version),
	)
	return removed, nil
}

// ClientCacheVersion is the token overlays compare to invalidate local
// copies.
func (s *Service) ClientCacheVersion() int64 {
	return s.clientCacheVersion.Load()
}

func (s *Service) bumpClientCacheVersion() int64 {
	for {
		current := s.clientCacheVersion.Load()
		next := max(s.now().Unix(), current+1)
		if s.clientCacheVersion.CompareAndSwap(current, next) {
			return next
		}
	}
}

// Search runs a remote search directly and returns the raw candidates.
func (s *Service) Search(ctx context.Context, query string) ([]matching.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "rating", "search", "Query required", nil)
	}
	candidates, err := s.remote.Search(services.WithStage(ctx, "search"), query)
	if err != nil {
		return nil, s.remoteError("search", err)
	}
	return candidates, nil
}

// ManualMatch pins itemID to a remote record, fetching its rating now.
func (s *Service) ManualMatch(ctx context.Context, itemID, remoteID string) (cache.Entry, error) {
	itemID = strings.TrimSpace(itemID)
	remoteID = strings.TrimSpace(remoteID)
	if itemID == "" || remoteID == "" {
		return cache.Entry{}, services.Wrap(services.ErrValidation, "rating", "match", "ItemId and CsfdId required", nil)
	}
	ctx = services.WithItemID(ctx, itemID)

	fingerprint := ""
	item, err := s.library.Get(ctx, itemID)
	switch {
	case err == nil:
		fingerprint = matching.Fingerprint(item)
	case errors.Is(err, library.ErrNotFound):
		return cache.Entry{}, services.Wrap(services.ErrNotFound, "rating", "match", "library item not found", err)
	default:
		return cache.Entry{}, fmt.Errorf("load library item %s: %w", itemID, err)
	}

	percent, err := s.remote.GetRating(services.WithStage(ctx, "rating"), remoteID)
	if err != nil {
		return cache.Entry{}, s.remoteError("match", err)
	}

	now := s.now()
	entry := cache.BeginAttempt(s.store.Lookup(itemID), itemID, fingerprint, now)
	cache.MarkResolved(&entry, cache.Match{
		CSFDID:  remoteID,
		Percent: percent,
		Query:   manualQueryPrefix + remoteID,
	})
	stored, err := s.store.Upsert(ctx, entry)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("write cache entry: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("manual match stored",
		logging.String("csfd_id", remoteID),
		logging.String("display", stored.DisplayText),
	)
	return stored, nil
}

// Status reports queue state, library size and cache totals.
func (s *Service) Status(ctx context.Context) (Status, error) {
	items, err := s.library.List(ctx, library.DefaultKinds...)
	if err != nil {
		return Status{}, fmt.Errorf("list library: %w", err)
	}
	return Status{
		QueueSize:         s.queue.Len(),
		Paused:            s.queue.Paused(),
		TotalLibraryItems: len(items),
		CacheStats:        s.store.Stats(),
	}, nil
}

// Unmatched lists library items whose cached lookup ended as NotFound or in
// an error state, in library order.
func (s *Service) Unmatched(ctx context.Context) ([]UnmatchedItem, error) {
	items, err := s.library.List(ctx, library.DefaultKinds...)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	var out []UnmatchedItem
	for _, item := range items {
		entry, ok := s.store.Get(item.ID)
		if !ok || (entry.Status != cache.StatusNotFound && !entry.Status.IsError()) {
			continue
		}
		year, _ := item.Year()
		out = append(out, UnmatchedItem{
			ItemID:        item.ID,
			Title:         item.Name,
			OriginalTitle: item.OriginalTitle,
			Year:          year,
			Status:        entry.Status,
			LastError:     entry.LastError,
		})
	}
	return out, nil
}

// Entry returns the full cache entry for itemID.
func (s *Service) Entry(ctx context.Context, itemID string) (EntryDetails, error) {
	entry, ok := s.store.Get(itemID)
	if !ok {
		return EntryDetails{}, services.Wrap(services.ErrNotFound, "rating", "entry", "no cache entry for "+itemID, nil)
	}
	details := EntryDetails{Entry: entry}
	item, err := s.library.Get(ctx, itemID)
	switch {
	case err == nil:
		details.LibraryTitle = item.Name
		details.LibraryYear, _ = item.Year()
	case errors.Is(err, library.ErrNotFound):
	default:
		logging.WarnWithContext(s.logger, "library lookup failed for entry details", "rating_entry_library",
			logging.String(logging.FieldItemID, itemID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the library server connection"),
			logging.String(logging.FieldImpact, "entry returned without library metadata"),
		)
	}
	return details, nil
}

// Pause stops the queue worker from taking new items.
func (s *Service) Pause() {
	s.queue.Pause()
	s.logger.Info("fetch queue paused")
}

// Resume lets the queue worker continue.
func (s *Service) Resume() {
	s.queue.Resume()
	s.logger.Info("fetch queue resumed")
}

func (s *Service) enqueue(ctx context.Context, req fetch.Request) bool {
	if err := s.queue.Enqueue(req); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "enqueue failed", "rating_enqueue",
			logging.String(logging.FieldItemID, req.ItemID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the daemon is shutting down"),
			logging.String(logging.FieldImpact, "item not queued for lookup"),
		)
		return false
	}
	return true
}

func (s *Service) remoteError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "rating", operation, "request cancelled", err)
	}
	if errors.Is(err, csfd.ErrThrottled) {
		hint, _ := csfd.RetryAfterHint(err)
		s.limiter.RegisterThrottleSignal(hint)
	}
	return services.Wrap(services.ErrTransient, "rating", operation, "remote request failed", err)
}

func fromEntry(entry cache.Entry) Rating {
	return Rating{
		ItemID:      entry.ItemID,
		Status:      entry.Status,
		Percent:     entry.Percent,
		Stars:       entry.Stars,
		DisplayText: entry.DisplayText,
		CSFDID:      entry.CSFDID,
	}
}

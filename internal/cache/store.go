package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"csfdoverlay/internal/logging"
)

// ErrMissingItemID is returned when an entry without an item id is stored.
var ErrMissingItemID = errors.New("cache entry item id required")

// Store is the in-memory view of the cache, written through to a Backend.
// Reads run concurrently; writers are serialized so a load-modify-store
// sequence never interleaves with another writer.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[string]Entry
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore loads all entries from backend.
func NewStore(ctx context.Context, backend Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("cache store: backend required")
	}
	s := &Store{
		backend: backend,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	s.entries = make(map[string]Entry, len(loaded))
	for key, entry := range loaded {
		s.entries[Key(key)] = entry
	}
	s.logger.Debug("cache loaded", logging.Int("entries", len(s.entries)))
	return s, nil
}

// Get returns the entry for itemID.
func (s *Store) Get(itemID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[Key(itemID)]
	if !ok {
		return Entry{}, false
	}
	return entry.Clone(), true
}

// Lookup is Get returning a pointer, nil when absent.
func (s *Store) Lookup(itemID string) *Entry {
	entry, ok := s.Get(itemID)
	if !ok {
		return nil
	}
	return &entry
}

// GetMany returns the entries found for itemIDs keyed by the ids as given.
func (s *Store) GetMany(itemIDs []string) map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(itemIDs))
	for _, id := range itemIDs {
		if entry, ok := s.entries[Key(id)]; ok {
			out[id] = entry.Clone()
		}
	}
	return out
}

// All returns every entry sorted by item id.
func (s *Store) All() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return Key(out[i].ItemID) < Key(out[j].ItemID) })
	return out
}

// WithStatus returns entries in any of the given states, sorted by item id.
func (s *Store) WithStatus(statuses ...Status) []Entry {
	all := s.All()
	out := all[:0]
	for _, entry := range all {
		for _, status := range statuses {
			if entry.Status == status {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

// Upsert writes entry, stamping UpdatedAt and preserving the stored
// CreatedAt.
func (s *Store) Upsert(ctx context.Context, entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.ItemID) == "" {
		return Entry{}, ErrMissingItemID
	}
	key := Key(entry.ItemID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	s.mu.RLock()
	existing, ok := s.entries[key]
	s.mu.RUnlock()
	if ok && !existing.CreatedAt.IsZero() {
		entry.CreatedAt = existing.CreatedAt
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Status == "" {
		entry.Status = StatusUnknown
	}
	entry.UpdatedAt = now
	entry = entry.Clone()

	if err := s.backend.Put(ctx, key, entry); err != nil {
		return Entry{}, fmt.Errorf("persist cache entry %s: %w", entry.ItemID, err)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return entry.Clone(), nil
}

// Delete removes the entry for itemID. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, itemID string) error {
	key := Key(itemID)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", itemID, err)
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Clear removes all entries and returns how many were dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	s.mu.Lock()
	removed := len(s.entries)
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	return removed, nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats counts entries by status. Errors includes transient and permanent
// failures.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{TotalEntries: len(s.entries)}
	for _, entry := range s.entries {
		switch {
		case entry.Status == StatusResolved:
			stats.Resolved++
		case entry.Status == StatusNotFound:
			stats.NotFound++
		case entry.Status.IsError():
			stats.Errors++
		}
	}
	return stats
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

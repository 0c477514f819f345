package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// JSONFileBackend keeps the whole map in one JSON document that is replaced
// atomically on every write.
type JSONFileBackend struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

// OpenJSONFile opens the document at path. A missing file is an empty cache.
func OpenJSONFile(path string) (*JSONFileBackend, error) {
	b := &JSONFileBackend{path: path, entries: make(map[string]Entry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b.entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrCorrupt, path, err)
	}
	if b.entries == nil {
		b.entries = make(map[string]Entry)
	}
	return b, nil
}

// Load returns a copy of the document.
func (b *JSONFileBackend) Load(ctx context.Context) (map[string]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.entries), nil
}

// Put replaces the document with entry applied.
func (b *JSONFileBackend) Put(ctx context.Context, key string, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := maps.Clone(b.entries)
	next[key] = entry
	return b.replace(next)
}

// Delete replaces the document without key.
func (b *JSONFileBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return nil
	}
	next := maps.Clone(b.entries)
	delete(next, key)
	return b.replace(next)
}

// Clear replaces the document with an empty map.
func (b *JSONFileBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replace(make(map[string]Entry))
}

// Close is a no-op; every write is already durable.
func (b *JSONFileBackend) Close() error {
	return nil
}

func (b *JSONFileBackend) replace(next map[string]Entry) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	pending, err := renameio.NewPendingFile(b.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending cache file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	b.entries = next
	return nil
}

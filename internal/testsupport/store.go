package testsupport

import (
	"context"
	"testing"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/config"
)

// MustOpenStore opens the configured cache store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *cache.Store {
	t.Helper()

	store, err := cache.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedEntry writes entry into store.
func SeedEntry(t testing.TB, store *cache.Store, entry cache.Entry) cache.Entry {
	t.Helper()

	stored, err := store.Upsert(context.Background(), entry)
	if err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	return stored
}

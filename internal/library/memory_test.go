package library_test

import (
	"context"
	"errors"
	"testing"

	"csfdoverlay/internal/library"
)

func TestMemoryGetAndList(t *testing.T) {
	src := library.NewMemory(
		library.Item{ID: "m1", Name: "Pelíšky", Kind: library.KindMovie},
		library.Item{ID: "s1", Name: "Arabela", Kind: library.KindSeries},
		library.Item{ID: "e1", Name: "Episode", Kind: "Episode"},
	)
	ctx := context.Background()

	item, err := src.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Name != "Pelíšky" {
		t.Fatalf("unexpected item: %#v", item)
	}
	if _, err := src.Get(ctx, "missing"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	items, err := src.List(ctx, library.DefaultKinds...)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "m1" || items[1].ID != "s1" {
		t.Fatalf("unexpected filtered list: %#v", items)
	}

	src.Delete("m1")
	all, _ := src.List(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 items after delete, got %d", len(all))
	}
}

func TestItemQueryPrefersOriginalTitle(t *testing.T) {
	item := library.Item{Name: "Cosy Dens", OriginalTitle: " Pelíšky "}
	if got := item.Query(); got != "Pelíšky" {
		t.Fatalf("Query mismatch: got %q, want %q", got, "Pelíšky")
	}
	item.OriginalTitle = "  "
	if got := item.Query(); got != "Cosy Dens" {
		t.Fatalf("Query fallback mismatch: got %q", got)
	}
}

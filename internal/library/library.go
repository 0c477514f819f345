package library

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when the library has no item with the requested id.
var ErrNotFound = errors.New("library item not found")

// Kind is the library type tag of an item.
type Kind string

const (
	KindMovie  Kind = "Movie"
	KindSeries Kind = "Series"
)

// Item carries the identifying metadata the rating pipeline matches on.
type Item struct {
	ID             string
	Name           string
	OriginalTitle  string
	ProductionYear int
	Kind           Kind
	ProviderIDs    map[string]string
}

// IsSeries reports whether the item is a series rather than a movie.
func (i Item) IsSeries() bool {
	return i.Kind == KindSeries
}

// Year returns the production year and whether it is known.
func (i Item) Year() (int, bool) {
	return i.ProductionYear, i.ProductionYear > 0
}

// Query is the search string used against the rating site: the original
// title when present, otherwise the display name.
func (i Item) Query() string {
	if original := strings.TrimSpace(i.OriginalTitle); original != "" {
		return original
	}
	return strings.TrimSpace(i.Name)
}

// Source resolves library items by id and enumerates the library.
type Source interface {
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context, kinds ...Kind) ([]Item, error)
}

// DefaultKinds are the item types ratings are resolved for.
var DefaultKinds = []Kind{KindMovie, KindSeries}

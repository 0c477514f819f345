// Package cache persists rating resolution state per library item.
//
// Store keeps the full entry map in memory behind a read/write lock and
// writes every mutation through to a Backend before publishing it. Three
// backends exist: SQLite (default), bbolt and a single JSON document
// replaced atomically on every write. Storage that cannot be read at startup
// is moved aside and replaced by an empty cache.
//
// The retry policy lives next to the entry model: ShouldAttempt decides if
// an item needs another remote lookup and Policy applies the outcome of an
// attempt to an entry.
package cache

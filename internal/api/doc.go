// Package api defines the wire-format types exchanged between the daemon's
// HTTP API, the browser overlay and the CLI, together with converters from the
// rating service models and an HTTP client for the admin surface.
//
// # Key Types
//
// RatingData: overlay view of one item (status, percent, stars, display text).
//
// StatusResponse: queue size, pause state, library size and cache totals.
//
// CacheEntry/EntryDetails: full cached state of an item for diagnostics.
//
// ActionResponse: result of pause, resume, sweep and reset actions.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for the browser overlay. Statuses are exposed
// with their cache names (Resolved, NotFound, ...). Timestamps use RFC3339
// with milliseconds in UTC; zero times are omitted.
package api

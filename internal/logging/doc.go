// Package logging assembles structured slog loggers and formatting helpers used
// across csfdoverlay.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with library item IDs, stages, and correlation IDs. The daemon log file
// always receives JSON through a tee handler, whatever the console format.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging

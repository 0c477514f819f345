// Package logs reads the daemon's on-disk diagnostics for the CLI.
//
// Tail streams csfdoverlay.log with bounded memory, supports "last N lines"
// through a negative offset, and polls for new lines in follow mode. Lines
// written by the JSON file handler decode into Record values that can be
// filtered by level, component and item. ReadJournal decodes the remote
// failure journal kept next to the cache.
package logs

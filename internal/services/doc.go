// Package services defines shared utilities consumed by the rating pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp library item IDs, pipeline stages, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the HTTP API and
//     the pipeline classify failures consistently.
//
// Use these helpers when wiring new integration code so operational behaviour
// (error handling, observability) stays uniform across the daemon.
package services

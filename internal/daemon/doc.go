// Package daemon coordinates the long-running csfdoverlay process.
//
// It wires the rating service, fetch queue and rate limiter into a single
// lifecycle with flock-based locking to prevent multiple instances, patches
// the web client at startup when overlay injection is enabled, and serves the
// HTTP API the overlay and CLI talk to.
//
// Keep orchestration logic here: rating semantics live in the rating, fetch
// and cache packages while the daemon focuses on startup, shutdown, and the
// HTTP surface.
package daemon

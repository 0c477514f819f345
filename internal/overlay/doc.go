// Package overlay patches the media server's web client so it loads the
// rating overlay script, and embeds that script for the daemon to serve.
//
// Inject is a pure document transform; PatchFile applies it to index.html on
// disk with a one-time backup and an atomic replace.
package overlay

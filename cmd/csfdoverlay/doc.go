// Command csfdoverlay runs the rating daemon and talks to it.
//
// `csfdoverlay run` starts the daemon in the foreground. The remaining
// commands call the daemon HTTP API (status, lookups, manual matches and
// sweeps) or work locally without it (logs, journal, overlay inject, doctor).
package main

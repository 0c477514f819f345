// Package preflight provides readiness checks for the services and paths
// csfdoverlay depends on.
//
// The CLI "csfdoverlay doctor" command runs RunAll and renders each Result.
// Checks for disabled features are skipped.
package preflight

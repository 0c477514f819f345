// Package library models the media-library items ratings are resolved for and
// the Source contract the pipeline uses to look them up.
//
// The Jellyfin HTTP implementation lives in services/jellyfin; Memory backs
// tests.
package library

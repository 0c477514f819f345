// Package csfd talks to the CSFD film database website.
//
// The Client issues search and detail page requests, parses result pages
// with golang.org/x/net/html and classifies failures as typed errors:
// ThrottleError for 429/403/503 answers, StatusError for other non-2xx
// responses, ErrCaptcha for bot-check pages and ErrRatingNotFound when a
// detail page carries no rating percent. Unexpected pages are appended to
// an optional JSON Lines Journal for offline inspection.
package csfd

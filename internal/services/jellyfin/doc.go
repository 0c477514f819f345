// Package jellyfin implements the library source over the Jellyfin HTTP API.
//
// Items are resolved through the /Items endpoint (scoped to a user when one is
// configured) and every call runs through a circuit breaker, so a dead server
// fails fast as a transient error instead of stalling the fetch queue.
package jellyfin

// Package ratelimit serializes outbound requests to the rating site.
//
// A Limiter hands out one scope at a time. Acquire blocks until both the
// minimum inter-request interval and any throttle cooldown have elapsed;
// releasing the scope starts the next interval. Throttle signals escalate a
// shared cooldown geometrically up to a cap. The backoff never decays while
// the process runs, although each cooldown window elapses on its own.
package ratelimit

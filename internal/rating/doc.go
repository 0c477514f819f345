// Package rating is the facade API producers talk to. It answers rating
// lookups from the cache, feeds missing items to the fetch queue, and runs
// the administrative sweeps (backfill, retries, cache reset, manual match).
//
// Service never calls the rating site on the read path; only Search and
// ManualMatch issue direct remote calls, and both go through the shared
// rate limiter.
package rating

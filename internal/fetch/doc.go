// Package fetch runs one rating resolution attempt for a library item.
//
// Processor looks the item up, consults the cache retry policy, then
// searches the rating site and fetches the matched record's rating through
// the shared rate limiter. Every classified outcome is written back to the
// cache except throttles, which only feed the limiter and are reported to
// the caller so the queue can pause. Cancelled attempts write nothing.
package fetch

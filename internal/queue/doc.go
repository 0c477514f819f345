// Package queue drains fetch requests on a single background worker.
//
// Enqueue accepts work from any goroutine and starts the worker on first
// use. The worker processes one request at a time, which together with the
// rate limiter keeps at most one remote call in flight. While paused the
// worker polls at a short fixed interval and holds on to the request it
// already dequeued. A throttled request goes back to the tail of the queue
// and the worker sleeps before pulling the next one, so a site-wide
// throttle pauses everything rather than delaying a single item.
//
// The queue is in-memory only; pending work is dropped on shutdown and
// rebuilt by producers (overlay lookups, backfill sweeps) after restart.
package queue

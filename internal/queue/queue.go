package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"csfdoverlay/internal/fetch"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/metrics"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/services"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultThrottleSleep = 60 * time.Second
)

// ErrClosed is returned by Enqueue after Stop.
var ErrClosed = errors.New("fetch queue closed")

// Processor handles one request.
type Processor interface {
	Process(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Options configure a Queue.
type Options struct {
	// PollInterval is how often a paused worker checks for resume.
	PollInterval time.Duration
	// ThrottleSleep is the pause after a throttle without a retry hint.
	ThrottleSleep time.Duration
	Logger        *slog.Logger
	// Sleep overrides the cancellable sleep (useful for tests).
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
}

// Queue is an unbounded multi-producer, single-consumer work queue.
type Queue struct {
	processor     Processor
	logger        *slog.Logger
	pollInterval  time.Duration
	throttleSleep time.Duration
	sleep         func(context.Context, time.Duration) error
	now           func() time.Time

	paused atomic.Bool
	notify chan struct{}

	mu      sync.Mutex
	items   []fetch.Request
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a queue around processor.
func New(processor Processor, opts Options) *Queue {
	q := &Queue{
		processor:     processor,
		logger:        logging.NewComponentLogger(opts.Logger, "queue"),
		pollInterval:  opts.PollInterval,
		throttleSleep: opts.ThrottleSleep,
		sleep:         opts.Sleep,
		now:           opts.Now,
		notify:        make(chan struct{}, 1),
	}
	if q.pollInterval <= 0 {
		q.pollInterval = defaultPollInterval
	}
	if q.throttleSleep <= 0 {
		q.throttleSleep = defaultThrottleSleep
	}
	if q.sleep == nil {
		q.sleep = ratelimit.Sleep
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// Start launches the worker bound to ctx. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.startLocked(ctx)
	return nil
}

func (q *Queue) startLocked(ctx context.Context) {
	if q.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.started = true
	q.wg.Add(1)
	go q.run(runCtx)
	q.logger.Info("fetch queue started", logging.String(logging.FieldEventType, "queue_started"))
}

// Enqueue appends req at the tail, starting the worker if needed.
func (q *Queue) Enqueue(req fetch.Request) error {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = q.now().UTC()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.startLocked(context.Background())
	q.items = append(q.items, req)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	q.signal()
	return nil
}

// Len returns the number of requests waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pause stops the worker from processing until Resume.
func (q *Queue) Pause() {
	if !q.paused.Swap(true) {
		q.logger.Info("fetch queue paused", logging.String(logging.FieldEventType, "queue_paused"))
	}
}

// Resume lets a paused worker continue.
func (q *Queue) Resume() {
	if q.paused.Swap(false) {
		q.logger.Info("fetch queue resumed", logging.String(logging.FieldEventType, "queue_resumed"))
	}
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// Stop refuses further work, cancels the in-flight request and waits for
// the worker to exit. Pending requests are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	cancel := q.cancel
	dropped := len(q.items)
	q.items = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	metrics.SetQueueDepth(0)
	q.logger.Info("fetch queue stopped",
		logging.Int("dropped", dropped),
		logging.String(logging.FieldEventType, "queue_stopped"),
	)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		req, ok := q.next(ctx)
		if !ok {
			return
		}
		if !q.waitWhilePaused(ctx) {
			return
		}

		result, err := q.process(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.ErrorWithContext(logging.WithContext(services.WithItemID(ctx, req.ItemID), q.logger),
				"fetch attempt failed; dropping request", "queue_process_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "a later lookup for this item will try again"),
			)
			continue
		}
		if result.Outcome != fetch.OutcomeThrottled {
			continue
		}

		req.Attempt++
		q.requeue(req)
		delay := result.RetryAfter
		if delay <= 0 {
			delay = q.throttleSleep
		}
		q.logger.Info("throttled; sleeping before next request",
			logging.String(logging.FieldItemID, req.ItemID),
			logging.Duration("delay", delay),
			logging.String(logging.FieldEventType, "queue_throttle_sleep"),
		)
		if err := q.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// next blocks until a request is available or ctx ends.
func (q *Queue) next(ctx context.Context) (fetch.Request, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items[0] = fetch.Request{}
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			metrics.SetQueueDepth(depth)
			return req, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fetch.Request{}, false
		case <-q.notify:
		}
	}
}

func (q *Queue) requeue(req fetch.Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, req)
	depth := len(q.items)
	q.mu.Unlock()
	metrics.SetQueueDepth(depth)
	q.signal()
}

func (q *Queue) waitWhilePaused(ctx context.Context) bool {
	for q.paused.Load() {
		if err := q.sleep(ctx, q.pollInterval); err != nil {
			return false
		}
	}
	return ctx.Err() == nil
}

func (q *Queue) process(ctx context.Context, req fetch.Request) (result fetch.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v\n%s", r, debug.Stack())
		}
	}()
	return q.processor.Process(ctx, req)
}

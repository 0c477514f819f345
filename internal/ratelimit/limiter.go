package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/metrics"
)

// DefaultBackoffCap bounds the escalated cooldown when Config leaves it unset.
const DefaultBackoffCap = 60 * time.Minute

// Config holds limiter timings.
type Config struct {
	MinInterval time.Duration
	MinCooldown time.Duration
	BackoffCap  time.Duration
}

// Limiter gates remote calls.
type Limiter struct {
	cfg    Config
	gate   chan struct{}
	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu            sync.Mutex
	nextEarliest  time.Time
	cooldownUntil time.Time
	backoff       time.Duration
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the limiter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source and sleep function (useful for tests).
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New constructs a limiter.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	l := &Limiter{
		cfg:    cfg,
		gate:   make(chan struct{}, 1),
		logger: logging.NewNop(),
		now:    time.Now,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire waits for the gate and for the current delay window to pass. The
// returned release func must be called once the remote call finishes; extra
// calls are ignored.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		delay := l.pendingDelay()
		if delay <= 0 {
			break
		}
		l.logger.Debug("rate limiter waiting", logging.Duration("delay", delay))
		if err := l.sleep(ctx, delay); err != nil {
			<-l.gate
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.nextEarliest = l.now().Add(l.cfg.MinInterval)
			l.mu.Unlock()
			<-l.gate
		})
	}, nil
}

// RegisterThrottleSignal escalates the shared cooldown. The first signal
// uses retryAfter when positive, otherwise the configured minimum cooldown;
// later signals double the previous backoff.
func (l *Limiter) RegisterThrottleSignal(retryAfter time.Duration) time.Duration {
	l.mu.Lock()
	if l.backoff == 0 {
		l.backoff = l.cfg.MinCooldown
		if retryAfter > 0 {
			l.backoff = retryAfter
		}
	} else {
		l.backoff *= 2
	}
	if l.backoff > l.cfg.BackoffCap {
		l.backoff = l.cfg.BackoffCap
	}
	backoff := l.backoff
	l.cooldownUntil = l.now().Add(backoff)
	l.mu.Unlock()

	metrics.RecordThrottleSignal()
	logging.WarnWithContext(l.logger, "throttle detected, backing off", "rate_limit_backoff",
		logging.Duration("cooldown", backoff),
		logging.String(logging.FieldErrorHint, "the site is rejecting requests; raise csfd.request_delay_ms if this repeats"),
		logging.String(logging.FieldImpact, "remote requests paused until the cooldown elapses"),
	)
	return backoff
}

// Snapshot reports limiter state for diagnostics.
type Snapshot struct {
	NextEarliest  time.Time
	CooldownUntil time.Time
	Backoff       time.Duration
}

// Snapshot returns the current limiter state.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		NextEarliest:  l.nextEarliest,
		CooldownUntil: l.cooldownUntil,
		Backoff:       l.backoff,
	}
}

func (l *Limiter) pendingDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.nextEarliest
	if l.cooldownUntil.After(until) {
		until = l.cooldownUntil
	}
	return until.Sub(l.now())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/csfd"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/metrics"
	"csfdoverlay/internal/services"
)

// Remote is the rating site client.
type Remote interface {
	Search(ctx context.Context, query string) ([]matching.Candidate, error)
	GetRating(ctx context.Context, remoteID string) (int, error)
}

// Limiter serializes remote calls.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
	RegisterThrottleSignal(retryAfter time.Duration) time.Duration
}

// Options configure a Processor.
type Options struct {
	Library library.Source
	Store   *cache.Store
	Remote  Remote
	Limiter Limiter
	Policy  cache.Policy
	// Disabled turns every request into a no-op success.
	Disabled bool
	Logger   *slog.Logger
	Now      func() time.Time
}

// Processor executes fetch requests.
type Processor struct {
	library  library.Source
	store    *cache.Store
	remote   Remote
	limiter  Limiter
	policy   cache.Policy
	disabled bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor validates opts and builds a Processor.
func NewProcessor(opts Options) (*Processor, error) {
	switch {
	case opts.Library == nil:
		return nil, errors.New("fetch processor: library source required")
	case opts.Store == nil:
		return nil, errors.New("fetch processor: cache store required")
	case opts.Remote == nil:
		return nil, errors.New("fetch processor: remote client required")
	case opts.Limiter == nil:
		return nil, errors.New("fetch processor: rate limiter required")
	}
	p := &Processor{
		library:  opts.Library,
		store:    opts.Store,
		remote:   opts.Remote,
		limiter:  opts.Limiter,
		policy:   opts.Policy,
		disabled: opts.Disabled,
		logger:   logging.NewComponentLogger(opts.Logger, "fetch"),
		now:      opts.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Process runs one attempt. The returned error is non-nil only for
// failures that are not remote outcomes (library lookups, cache writes,
// cancellation); such attempts are dropped by the caller.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p.disabled {
		metrics.RecordFetchResult(metrics.ResultSkipped)
		return Success(), nil
	}
	ctx = services.WithItemID(ctx, req.ItemID)
	logger := logging.WithContext(ctx, p.logger)

	item, err := p.library.Get(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			logging.WarnWithContext(logger, "item missing from library; dropping request", "fetch_item_missing",
				logging.String(logging.FieldErrorHint, "the item was removed or the id is wrong"),
				logging.String(logging.FieldImpact, "no rating lookup for this request"),
			)
			metrics.RecordFetchResult(metrics.ResultSkipped)
			return Success(), nil
		}
		return Result{}, fmt.Errorf("load library item %s: %w", req.ItemID, err)
	}

	fingerprint := matching.Fingerprint(item)
	existing := p.store.Lookup(req.ItemID)
	now := p.now()
	if !cache.ShouldAttempt(existing, fingerprint, req.Force, now) {
		logger.Debug("cached state is current; skipping", logging.String("status", string(existing.Status)))
		metrics.RecordFetchResult(metrics.ResultSkipped)
		return Success(), nil
	}

	entry := cache.BeginAttempt(existing, req.ItemID, fingerprint, now)
	query := item.Query()

	var candidates []matching.Candidate
	err = p.callRemote(services.WithStage(ctx, "search"), func(ctx context.Context) error {
		var searchErr error
		candidates, searchErr = p.remote.Search(ctx, query)
		return searchErr
	})
	if err != nil {
		return p.handleFailure(ctx, logger, &entry, err)
	}

	year, _ := item.Year()
	best := matching.PickBest(matching.Target{
		Title:         item.Name,
		OriginalTitle: item.OriginalTitle,
		Year:          year,
		IsSeries:      item.IsSeries(),
	}, candidates)
	if best == nil {
		cache.MarkNotFound(&entry, query)
		if err := p.write(ctx, entry); err != nil {
			return Result{}, err
		}
		logger.Info("no matching candidate; cached negative result",
			logging.String("query", query),
			logging.Int("candidates", len(candidates)),
		)
		metrics.RecordFetchResult(metrics.ResultNotFound)
		return Success(), nil
	}

	var percent int
	err = p.callRemote(services.WithStage(ctx, "rating"), func(ctx context.Context) error {
		var ratingErr error
		percent, ratingErr = p.remote.GetRating(ctx, best.RemoteID)
		return ratingErr
	})
	if err != nil {
		return p.handleFailure(ctx, logger, &entry, err)
	}

	cache.MarkResolved(&entry, cache.Match{
		CSFDID:  best.RemoteID,
		Title:   best.Title,
		Year:    best.Year,
		Percent: percent,
		Query:   query,
	})
	if err := p.write(ctx, entry); err != nil {
		return Result{}, err
	}
	logger.Info("rating cached",
		logging.String("csfd_id", best.RemoteID),
		logging.String("matched_title", best.Title),
		logging.Float64("score", best.Score),
		logging.String("display", entry.DisplayText),
	)
	metrics.RecordFetchResult(metrics.ResultResolved)
	return Success(), nil
}

func (p *Processor) callRemote(ctx context.Context, call func(context.Context) error) error {
	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return call(ctx)
}

func (p *Processor) handleFailure(ctx context.Context, logger *slog.Logger, entry *cache.Entry, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}

	var throttle *csfd.ThrottleError
	if errors.As(err, &throttle) {
		cooldown := p.limiter.RegisterThrottleSignal(throttle.RetryAfter)
		logging.WarnWithContext(logger, "remote throttled; request will be requeued", "fetch_throttled",
			logging.String("reason", throttle.Error()),
			logging.Duration("cooldown", cooldown),
			logging.String(logging.FieldErrorHint, "wait for the cooldown to elapse"),
			logging.String(logging.FieldImpact, "queue pauses; cache entry unchanged"),
		)
		metrics.RecordFetchResult(metrics.ResultThrottled)
		return Throttled(throttle.RetryAfter, throttle.Error()), nil
	}

	p.policy.MarkTransient(entry, err.Error(), p.now())
	if writeErr := p.write(ctx, *entry); writeErr != nil {
		return Result{}, writeErr
	}
	if entry.Status == cache.StatusErrorPermanent {
		logging.WarnWithContext(logger, "lookup failed permanently", "fetch_permanent",
			logging.Int("attempts", entry.AttemptCount),
			logging.String("reason", entry.LastError),
			logging.String(logging.FieldErrorHint, "use retry-errors or a manual match"),
			logging.String(logging.FieldImpact, "no further automatic retries for this item"),
		)
		metrics.RecordFetchResult(metrics.ResultPermanent)
		return Result{Outcome: OutcomePermanent, Message: entry.LastError}, nil
	}
	logging.WarnWithContext(logger, "lookup failed; retry scheduled", "fetch_transient",
		logging.Int("attempts", entry.AttemptCount),
		logging.String("reason", entry.LastError),
		logging.Time("retry_after", *entry.RetryAfter),
		logging.String(logging.FieldErrorHint, "check the failure journal if this persists"),
		logging.String(logging.FieldImpact, "item retried after backoff"),
	)
	metrics.RecordFetchResult(metrics.ResultTransient)
	return Result{Outcome: OutcomeTransient, Message: entry.LastError}, nil
}

func (p *Processor) write(ctx context.Context, entry cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

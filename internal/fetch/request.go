package fetch

import (
	"fmt"
	"time"
)

// Request is an immutable unit of fetch work.
type Request struct {
	ItemID      string
	Fingerprint string
	Force       bool
	Attempt     int
	EnqueuedAt  time.Time
}

// Outcome classifies a processed request.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeThrottled
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what the queue acts on. RetryAfter is only meaningful for
// OutcomeThrottled and is zero when the site gave no hint.
type Result struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Message    string
}

// Success is the result for completed, skipped and dropped requests.
func Success() Result { return Result{Outcome: OutcomeSuccess} }

// Throttled reports a site-wide throttle.
func Throttled(retryAfter time.Duration, message string) Result {
	return Result{Outcome: OutcomeThrottled, RetryAfter: retryAfter, Message: message}
}

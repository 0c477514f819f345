package csfd

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Operation names used in error messages and journal contexts.
const (
	OpSearch  = "Search"
	OpDetails = "Details"
)

var (
	// ErrThrottled matches every ThrottleError.
	ErrThrottled = errors.New("throttled")
	// ErrCaptcha reports a bot-check page in place of content.
	ErrCaptcha = errors.New("Captcha detected")
	// ErrRatingNotFound reports a detail page without a rating percent.
	ErrRatingNotFound = errors.New("Rating percent not found")
)

// ThrottleError is returned when the site rejects a request with a throttle
// status. RetryAfter is zero when the response carried no usable hint.
type ThrottleError struct {
	Op         string
	Status     int
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s throttled: %d", e.Op, e.Status)
}

// Is reports ErrThrottled equivalence.
func (e *ThrottleError) Is(target error) bool {
	return target == ErrThrottled
}

// StatusError is returned for non-success responses that are not throttles.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// RetryAfterHint extracts the retry hint from a throttle error.
func RetryAfterHint(err error) (time.Duration, bool) {
	var throttle *ThrottleError
	if !errors.As(err, &throttle) {
		return 0, false
	}
	return throttle.RetryAfter, throttle.RetryAfter > 0
}

func isThrottleStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable:
		return true
	}
	return false
}

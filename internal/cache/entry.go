package cache

import (
	"strings"
	"time"
)

// Status is the resolution state of an entry.
type Status string

const (
	StatusUnknown        Status = "Unknown"
	StatusResolved       Status = "Resolved"
	StatusNotFound       Status = "NotFound"
	StatusErrorTransient Status = "ErrorTransient"
	StatusErrorPermanent Status = "ErrorPermanent"
)

// IsError reports whether s records a failed lookup.
func (s Status) IsError() bool {
	return s == StatusErrorTransient || s == StatusErrorPermanent
}

// ParseStatus maps a status name to a Status, falling back to Unknown.
func ParseStatus(value string) Status {
	for _, status := range []Status{StatusResolved, StatusNotFound, StatusErrorTransient, StatusErrorPermanent} {
		if strings.EqualFold(value, string(status)) {
			return status
		}
	}
	return StatusUnknown
}

// Entry is the cached state for one library item.
type Entry struct {
	ItemID       string     `json:"itemId"`
	Status       Status     `json:"status"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	CreatedAt    time.Time  `json:"createdUtc"`
	UpdatedAt    time.Time  `json:"updatedUtc"`
	AttemptedAt  time.Time  `json:"attemptedUtc"`
	CSFDID       string     `json:"csfdId,omitempty"`
	Percent      *int       `json:"percent,omitempty"`
	Stars        *float64   `json:"stars,omitempty"`
	DisplayText  string     `json:"displayText,omitempty"`
	RatingCount  *int       `json:"ratingCount,omitempty"`
	MatchedTitle string     `json:"matchedTitle,omitempty"`
	MatchedYear  *int       `json:"matchedYear,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	RetryAfter   *time.Time `json:"retryAfterUtc,omitempty"`
	AttemptCount int        `json:"attemptCount"`
	QueryUsed    string     `json:"queryUsed,omitempty"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	e.Percent = cloneInt(e.Percent)
	e.RatingCount = cloneInt(e.RatingCount)
	e.MatchedYear = cloneInt(e.MatchedYear)
	if e.Stars != nil {
		stars := *e.Stars
		e.Stars = &stars
	}
	if e.RetryAfter != nil {
		retry := *e.RetryAfter
		e.RetryAfter = &retry
	}
	return e
}

// Key canonicalizes an item id for lookups. Ids compare case-insensitively.
func Key(itemID string) string {
	return strings.ToLower(strings.TrimSpace(itemID))
}

// Stats summarizes the cache by status.
type Stats struct {
	TotalEntries int `json:"totalEntries"`
	Resolved     int `json:"resolved"`
	NotFound     int `json:"notFound"`
	Errors       int `json:"errors"`
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

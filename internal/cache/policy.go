package cache

import (
	"fmt"
	"math"
	"time"

	"csfdoverlay/internal/matching"
)

const (
	notFoundMessage     = "Not found"
	defaultTransientCap = 120 * time.Minute
	defaultMaxRetries   = 5
	defaultCooldownMin  = 10 * time.Minute
)

// ShouldAttempt reports whether an item needs a remote lookup given its
// cached entry (nil when absent) and its current fingerprint.
func ShouldAttempt(entry *Entry, fingerprint string, force bool, now time.Time) bool {
	if force || entry == nil {
		return true
	}
	switch entry.Status {
	case StatusResolved, StatusErrorPermanent:
		return false
	case StatusNotFound:
		return !matching.SameFingerprint(entry.Fingerprint, fingerprint)
	case StatusErrorTransient:
		return entry.RetryAfter == nil || !entry.RetryAfter.After(now)
	default:
		return true
	}
}

// Policy applies attempt outcomes to entries.
type Policy struct {
	MaxRetries  int
	CooldownMin time.Duration
	BackoffCap  time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.CooldownMin <= 0 {
		p.CooldownMin = defaultCooldownMin
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = defaultTransientCap
	}
	return p
}

// TransientBackoff returns the retry delay after attempt failed attempts:
// CooldownMin doubled per prior attempt, capped at BackoffCap.
func (p Policy) TransientBackoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	factor := math.Pow(2, float64(attempt-1))
	backoff := float64(p.CooldownMin) * factor
	if backoff >= float64(p.BackoffCap) {
		return p.BackoffCap
	}
	return time.Duration(backoff)
}

// BeginAttempt returns the entry an attempt works on: a copy of existing
// (or a fresh Unknown entry) with attempt bookkeeping advanced.
func BeginAttempt(existing *Entry, itemID, fingerprint string, now time.Time) Entry {
	var entry Entry
	if existing != nil {
		entry = existing.Clone()
	} else {
		entry = Entry{ItemID: itemID, Status: StatusUnknown, CreatedAt: now}
	}
	entry.AttemptCount++
	entry.AttemptedAt = now
	entry.Fingerprint = fingerprint
	return entry
}

// MarkTransient records a failed attempt. Once AttemptCount reaches
// MaxRetries the entry becomes permanent and stops scheduling retries.
func (p Policy) MarkTransient(entry *Entry, message string, now time.Time) {
	p = p.withDefaults()
	entry.LastError = message
	if entry.AttemptCount >= p.MaxRetries {
		entry.Status = StatusErrorPermanent
		entry.RetryAfter = nil
		return
	}
	retry := now.Add(p.TransientBackoff(entry.AttemptCount)).UTC()
	entry.Status = StatusErrorTransient
	entry.RetryAfter = &retry
}

// MarkNotFound records that no candidate matched query.
func MarkNotFound(entry *Entry, query string) {
	entry.Status = StatusNotFound
	entry.QueryUsed = query
	entry.LastError = notFoundMessage
	entry.RetryAfter = nil
}

// Match describes a resolved remote record.
type Match struct {
	CSFDID  string
	Title   string
	Year    int
	Percent int
	Query   string
}

// MarkResolved stores a rating and clears failure bookkeeping.
func MarkResolved(entry *Entry, match Match) {
	percent := match.Percent
	stars := float64(percent) / 10
	entry.Status = StatusResolved
	entry.CSFDID = match.CSFDID
	entry.Percent = &percent
	entry.Stars = &stars
	entry.DisplayText = DisplayText(stars)
	entry.MatchedTitle = match.Title
	entry.MatchedYear = nil
	if match.Year > 0 {
		year := match.Year
		entry.MatchedYear = &year
	}
	if match.Query != "" {
		entry.QueryUsed = match.Query
	}
	entry.RatingCount = nil
	entry.LastError = ""
	entry.RetryAfter = nil
}

// DisplayText formats a star value for the overlay.
func DisplayText(stars float64) string {
	return fmt.Sprintf("%.1f ⭐️", stars)
}

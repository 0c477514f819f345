package api

import (
	"time"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/rating"
)

// FromRating converts a service rating to its API representation.
func FromRating(r rating.Rating) RatingData {
	return RatingData{
		ItemID:      r.ItemID,
		Status:      string(r.Status),
		Percent:     r.Percent,
		Stars:       r.Stars,
		DisplayText: r.DisplayText,
		CSFDID:      r.CSFDID,
	}
}

// FromRatings converts a batch result.
func FromRatings(in map[string]rating.Rating) BatchResponse {
	out := make(BatchResponse, len(in))
	for id, r := range in {
		out[id] = FromRating(r)
	}
	return out
}

// FromStats converts cache totals.
func FromStats(stats cache.Stats) CacheStats {
	return CacheStats{
		TotalEntries: stats.TotalEntries,
		Resolved:     stats.Resolved,
		NotFound:     stats.NotFound,
		Errors:       stats.Errors,
	}
}

// FromStatus converts a service status. The throttle section is only set
// while a cooldown is active.
func FromStatus(status rating.Status, limiter ratelimit.Snapshot, now time.Time) StatusResponse {
	resp := StatusResponse{
		QueueSize:         status.QueueSize,
		IsPaused:          status.Paused,
		TotalLibraryItems: status.TotalLibraryItems,
		CacheStats:        FromStats(status.CacheStats),
	}
	if limiter.CooldownUntil.After(now) {
		resp.Throttle = &ThrottleStatus{
			CooldownUntil:  formatTime(limiter.CooldownUntil),
			BackoffSeconds: limiter.Backoff.Seconds(),
		}
	}
	return resp
}

// FromUnmatched converts the unmatched listing. The result is never nil.
func FromUnmatched(items []rating.UnmatchedItem) []UnmatchedItem {
	out := make([]UnmatchedItem, 0, len(items))
	for _, item := range items {
		out = append(out, UnmatchedItem{
			ItemID:        item.ItemID,
			Title:         item.Title,
			OriginalTitle: item.OriginalTitle,
			Year:          optionalInt(item.Year),
			Status:        string(item.Status),
			LastError:     item.LastError,
		})
	}
	return out
}

// FromEntry converts a cache entry.
func FromEntry(entry cache.Entry) CacheEntry {
	dto := CacheEntry{
		ItemID:       entry.ItemID,
		Status:       string(entry.Status),
		Fingerprint:  entry.Fingerprint,
		CreatedAt:    formatTime(entry.CreatedAt),
		UpdatedAt:    formatTime(entry.UpdatedAt),
		AttemptedAt:  formatTime(entry.AttemptedAt),
		CSFDID:       entry.CSFDID,
		Percent:      entry.Percent,
		Stars:        entry.Stars,
		DisplayText:  entry.DisplayText,
		RatingCount:  entry.RatingCount,
		MatchedTitle: entry.MatchedTitle,
		MatchedYear:  entry.MatchedYear,
		LastError:    entry.LastError,
		AttemptCount: entry.AttemptCount,
		QueryUsed:    entry.QueryUsed,
	}
	if entry.RetryAfter != nil {
		dto.RetryAfter = formatTime(*entry.RetryAfter)
	}
	return dto
}

// FromEntryDetails converts an entry joined with library metadata.
func FromEntryDetails(details rating.EntryDetails) EntryDetails {
	return EntryDetails{
		Entry:        FromEntry(details.Entry),
		LibraryTitle: details.LibraryTitle,
		LibraryYear:  optionalInt(details.LibraryYear),
	}
}

// FromCandidates converts remote search hits. The result is never nil.
func FromCandidates(candidates []matching.Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Candidate{
			CSFDID:   c.RemoteID,
			Title:    c.Title,
			Year:     optionalInt(c.Year),
			IsSeries: c.IsSeries,
		})
	}
	return out
}

// Enqueued builds a sweep response.
func Enqueued(n int) ActionResponse {
	return ActionResponse{Enqueued: &n}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}

func optionalInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

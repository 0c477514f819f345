package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RatingData is the overlay view of one library item.
type RatingData struct {
	ItemID      string   `json:"itemId"`
	Status      string   `json:"status"`
	Percent     *int     `json:"percent,omitempty"`
	Stars       *float64 `json:"stars,omitempty"`
	DisplayText string   `json:"displayText,omitempty"`
	CSFDID      string   `json:"csfdId,omitempty"`
}

// BatchRequest asks for ratings of several items.
type BatchRequest struct {
	ItemIDs []string `json:"itemIds"`
}

// BatchResponse maps each requested id to its rating.
type BatchResponse map[string]RatingData

// CacheStats counts cache entries by status.
type CacheStats struct {
	TotalEntries int `json:"totalEntries"`
	Resolved     int `json:"resolved"`
	NotFound     int `json:"notFound"`
	Errors       int `json:"errors"`
}

// ThrottleStatus reports the rate limiter cooldown window.
type ThrottleStatus struct {
	CooldownUntil  string  `json:"cooldownUntil,omitempty"`
	BackoffSeconds float64 `json:"backoffSeconds"`
}

// StatusResponse summarizes the rating pipeline.
type StatusResponse struct {
	QueueSize         int             `json:"queueSize"`
	IsPaused          bool            `json:"isPaused"`
	TotalLibraryItems int             `json:"totalLibraryItems"`
	CacheStats        CacheStats      `json:"cacheStats"`
	InjectionEnabled  bool            `json:"injectionEnabled"`
	InjectionMessage  string          `json:"injectionMessage,omitempty"`
	Throttle          *ThrottleStatus `json:"throttle,omitempty"`
}

// UnmatchedItem is a library item whose lookup ended without a rating.
type UnmatchedItem struct {
	ItemID        string `json:"itemId"`
	Title         string `json:"title,omitempty"`
	OriginalTitle string `json:"originalTitle,omitempty"`
	Year          *int   `json:"year,omitempty"`
	Status        string `json:"status"`
	LastError     string `json:"lastError,omitempty"`
}

// CacheEntry is the full cached state of an item.
type CacheEntry struct {
	ItemID       string   `json:"itemId"`
	Status       string   `json:"status"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	CreatedAt    string   `json:"createdUtc,omitempty"`
	UpdatedAt    string   `json:"updatedUtc,omitempty"`
	AttemptedAt  string   `json:"attemptedUtc,omitempty"`
	CSFDID       string   `json:"csfdId,omitempty"`
	Percent      *int     `json:"percent,omitempty"`
	Stars        *float64 `json:"stars,omitempty"`
	DisplayText  string   `json:"displayText,omitempty"`
	RatingCount  *int     `json:"ratingCount,omitempty"`
	MatchedTitle string   `json:"matchedTitle,omitempty"`
	MatchedYear  *int     `json:"matchedYear,omitempty"`
	LastError    string   `json:"lastError,omitempty"`
	RetryAfter   string   `json:"retryAfterUtc,omitempty"`
	AttemptCount int      `json:"attemptCount"`
	QueryUsed    string   `json:"queryUsed,omitempty"`
}

// EntryDetails joins a cache entry with its library metadata.
type EntryDetails struct {
	Entry        CacheEntry `json:"entry"`
	LibraryTitle string     `json:"libraryTitle,omitempty"`
	LibraryYear  *int       `json:"libraryYear,omitempty"`
}

// SearchRequest runs a direct remote search.
type SearchRequest struct {
	Query string `json:"query"`
}

// Candidate is one remote search hit.
type Candidate struct {
	CSFDID   string `json:"csfdId"`
	Title    string `json:"title"`
	Year     *int   `json:"year,omitempty"`
	IsSeries bool   `json:"isSeries"`
}

// MatchRequest pins an item to a remote record.
type MatchRequest struct {
	ItemID string `json:"itemId"`
	CSFDID string `json:"csfdId"`
}

// ActionResponse is returned by the admin actions. Sweeps report Enqueued;
// state changes report Status.
type ActionResponse struct {
	Status   string `json:"status,omitempty"`
	Enqueued *int   `json:"enqueued,omitempty"`
	Removed  *int   `json:"removed,omitempty"`
}

// ClientConfig is what the overlay reads on startup.
type ClientConfig struct {
	ClientCacheVersion int64 `json:"clientCacheVersion"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

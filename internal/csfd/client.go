package csfd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/matching"
	"csfdoverlay/internal/metrics"
)

const (
	// DefaultBaseURL is the public site root.
	DefaultBaseURL     = "https://www.csfd.cz"
	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 4 << 20
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Client fetches search and detail pages from the site.
type Client struct {
	baseURL    string
	httpClient *http.Client
	journal    *Journal
	logger     *slog.Logger
	userAgents []string
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithJournal records unexpected responses to journal.
func WithJournal(journal *Journal) Option {
	return func(c *Client) {
		c.journal = journal
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgents replaces the rotating user agent pool.
func WithUserAgents(agents ...string) Option {
	return func(c *Client) {
		if len(agents) > 0 {
			c.userAgents = agents
		}
	}
}

// New constructs a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("csfd client: parse base url: %w", err)
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logging.NewNop(),
		userAgents: defaultUserAgents,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search runs a title search and returns the parsed hits. An empty result
// is not an error.
func (c *Client) Search(ctx context.Context, query string) ([]matching.Candidate, error) {
	endpoint := c.baseURL + "/hledat/?q=" + url.QueryEscape(query)
	journalContext := "Search:" + query

	body, err := c.fetch(ctx, OpSearch, endpoint, journalContext)
	if err != nil {
		return nil, err
	}
	candidates, err := ParseCandidates(body)
	if err != nil {
		metrics.RecordRemoteRequest(metrics.OpSearch, "parse_error")
		c.journal.Record(journalContext, "Unparseable page", endpoint, body)
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	if len(candidates) == 0 {
		c.journal.Record(journalContext, "No candidates found", endpoint, body)
	}
	metrics.RecordRemoteRequest(metrics.OpSearch, "ok")
	return candidates, nil
}

// GetRating fetches the detail page for remoteID and returns its average
// rating percentage.
func (c *Client) GetRating(ctx context.Context, remoteID string) (int, error) {
	endpoint := c.baseURL + "/film/" + url.PathEscape(remoteID) + "/prehled/"
	journalContext := "Rating:" + remoteID

	body, err := c.fetch(ctx, OpDetails, endpoint, journalContext)
	if err != nil {
		return 0, err
	}
	if strings.Contains(body, "g-recaptcha") || strings.Contains(body, "Jste robot?") {
		metrics.RecordRemoteRequest(metrics.OpDetails, "captcha")
		logging.ErrorWithContext(c.logger, "bot check page returned", "csfd_captcha",
			logging.String("url", endpoint),
			logging.String(logging.FieldErrorHint, "raise csfd.request_delay_ms"),
		)
		c.journal.Record(journalContext, ErrCaptcha.Error(), endpoint, body)
		return 0, ErrCaptcha
	}
	percent, ok := ParsePercent(body)
	if !ok {
		metrics.RecordRemoteRequest(metrics.OpDetails, "no_rating")
		logging.WarnWithContext(c.logger, "rating percent missing from detail page", "csfd_rating_missing",
			logging.String("url", endpoint),
			logging.Int("html_length", len(body)),
			logging.String(logging.FieldErrorHint, "inspect the failure journal for the page markup"),
			logging.String(logging.FieldImpact, "item recorded as transient failure"),
		)
		c.journal.Record(journalContext, ErrRatingNotFound.Error(), endpoint, body)
		return 0, ErrRatingNotFound
	}
	metrics.RecordRemoteRequest(metrics.OpDetails, "ok")
	return percent, nil
}

func (c *Client) fetch(ctx context.Context, op, endpoint, journalContext string) (string, error) {
	metricOp := metrics.OpSearch
	if op == OpDetails {
		metricOp = metrics.OpDetails
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "cs,en;q=0.8")

	c.logger.Debug("fetching page", logging.String("op", op), logging.String("url", endpoint))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(metricOp, "transport_error")
		return "", fmt.Errorf("%s request: %w", strings.ToLower(op), err)
	}
	defer resp.Body.Close()

	if isThrottleStatus(resp.StatusCode) {
		metrics.RecordRemoteRequest(metricOp, "throttled")
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		logging.WarnWithContext(c.logger, "request throttled", "csfd_throttled",
			logging.String("op", op),
			logging.Int("status", resp.StatusCode),
			logging.Duration("retry_after", retryAfter),
			logging.String("url", endpoint),
			logging.String(logging.FieldErrorHint, "the site is rate limiting this host"),
			logging.String(logging.FieldImpact, "fetch queue pauses before the next request"),
		)
		return "", &ThrottleError{Op: op, Status: resp.StatusCode, RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordRemoteRequest(metricOp, "http_error")
		logging.ErrorWithContext(c.logger, "request failed", "csfd_http_error",
			logging.String("op", op),
			logging.Int("status", resp.StatusCode),
			logging.String("url", endpoint),
		)
		statusErr := &StatusError{Status: resp.StatusCode}
		c.journal.Record(journalContext, statusErr.Error(), endpoint, "")
		return "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordRemoteRequest(metricOp, "transport_error")
		return "", fmt.Errorf("%s read body: %w", strings.ToLower(op), err)
	}
	return string(body), nil
}

func (c *Client) userAgent() string {
	if len(c.userAgents) == 1 {
		return c.userAgents[0]
	}
	return c.userAgents[rand.Intn(len(c.userAgents))]
}

// parseRetryAfter accepts delta seconds or an HTTP date. Dates in the past
// yield no hint.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay <= 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

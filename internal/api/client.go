package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoutePrefix is the path every rating API route lives under.
const RoutePrefix = "/csfd"

// RequestIDHeader carries the caller's correlation id.
const RequestIDHeader = "X-Request-ID"

// ErrAPIUnavailable is returned when no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// HTTPError is a non-2xx answer from the daemon.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon API returned status %d", e.Status)
	}
	return fmt.Sprintf("daemon API returned status %d: %s", e.Status, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon listening on bind. An empty bind
// yields a nil client whose methods return ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Status fetches the pipeline summary.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Get fetches the rating of one item, queueing it when unknown.
func (c *Client) Get(ctx context.Context, itemID string) (RatingData, error) {
	var resp RatingData
	err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), nil, &resp)
	return resp, err
}

// Batch fetches ratings for several items.
func (c *Client) Batch(ctx context.Context, itemIDs []string) (BatchResponse, error) {
	var resp BatchResponse
	err := c.do(ctx, http.MethodPost, "/items/batch", BatchRequest{ItemIDs: itemIDs}, &resp)
	return resp, err
}

// Unmatched lists library items without a rating.
func (c *Client) Unmatched(ctx context.Context) ([]UnmatchedItem, error) {
	var resp []UnmatchedItem
	err := c.do(ctx, http.MethodGet, "/unmatched", nil, &resp)
	return resp, err
}

// Entry fetches the full cache entry of an item.
func (c *Client) Entry(ctx context.Context, itemID string) (EntryDetails, error) {
	var resp EntryDetails
	err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(itemID), nil, &resp)
	return resp, err
}

// Search runs a direct remote search.
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	var resp []Candidate
	err := c.do(ctx, http.MethodPost, "/search", SearchRequest{Query: query}, &resp)
	return resp, err
}

// Match pins an item to a remote record.
func (c *Client) Match(ctx context.Context, itemID, csfdID string) (CacheEntry, error) {
	var resp CacheEntry
	err := c.do(ctx, http.MethodPost, "/match", MatchRequest{ItemID: itemID, CSFDID: csfdID}, &resp)
	return resp, err
}

// Action invokes one of the admin actions (pause, resume, backfill,
// retry-notfound, retry-errors, reset-cache).
func (c *Client) Action(ctx context.Context, name string) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/actions/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

// ClientConfig fetches the overlay configuration.
func (c *Client) ClientConfig(ctx context.Context) (ClientConfig, error) {
	var resp ClientConfig
	err := c.do(ctx, http.MethodGet, "/client-config", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: RoutePrefix + path})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload)
		return &HTTPError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"csfdoverlay/internal/config"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/metrics"
	"csfdoverlay/internal/services"
)

const (
	breakerName  = "jellyfin"
	itemFields   = "OriginalTitle,ProviderIds,ProductionYear"
	listPageSize = 500
	tokenHeader  = "X-Emby-Token"
)

// HTTPDoer describes the HTTP client used by the source.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Source.
type Options struct {
	BaseURL string
	APIKey  string
	UserID  string
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures int
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	Client         HTTPDoer
	Logger         *slog.Logger
}

// Source is a library.Source backed by a Jellyfin server.
type Source struct {
	baseURL string
	apiKey  string
	userID  string
	client  HTTPDoer
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[[]item]
}

type item struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	OriginalTitle  string            `json:"OriginalTitle"`
	ProductionYear int               `json:"ProductionYear"`
	Type           string            `json:"Type"`
	ProviderIDs    map[string]string `json:"ProviderIds"`
}

type itemsResponse struct {
	Items            []item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// NewFromConfig builds a source from the [jellyfin] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Source, error) {
	if cfg == nil {
		return nil, errors.New("jellyfin: config required")
	}
	return New(Options{
		BaseURL:         cfg.Jellyfin.URL,
		APIKey:          cfg.Jellyfin.APIKey,
		UserID:          cfg.Jellyfin.UserID,
		BreakerFailures: cfg.Jellyfin.BreakerFailures,
		BreakerTimeout:  time.Duration(cfg.Jellyfin.BreakerTimeoutSeconds) * time.Second,
		Client:          &http.Client{Timeout: cfg.RequestTimeout()},
		Logger:          logger,
	})
}

// New builds a source. BaseURL is required.
func New(opts Options) (*Source, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "init", "url required", nil)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "init", "invalid url", err)
	}
	s := &Source{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		userID:  strings.TrimSpace(opts.UserID),
		client:  opts.Client,
		logger:  logging.NewComponentLogger(opts.Logger, "jellyfin"),
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}

	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.SetBreakerState(breakerName, 0)
	s.breaker = gobreaker.NewCircuitBreaker[[]item](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, library.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, stateValue(to))
			if to == gobreaker.StateOpen {
				logging.WarnWithContext(s.logger, "library circuit opened", "jellyfin_breaker_open",
					logging.String("from", from.String()),
					logging.Duration("timeout", timeout),
					logging.String(logging.FieldErrorHint, "check that the Jellyfin server is reachable"),
					logging.String(logging.FieldImpact, "library lookups fail fast until the server recovers"),
				)
				return
			}
			s.logger.Info("library circuit state changed",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Get resolves one item by id.
func (s *Source) Get(ctx context.Context, id string) (library.Item, error) {
	query := url.Values{}
	query.Set("Ids", id)
	query.Set("Fields", itemFields)
	query.Set("Recursive", "true")
	items, err := s.execute(ctx, query)
	if err != nil {
		return library.Item{}, err
	}
	for _, it := range items {
		if strings.EqualFold(it.ID, id) {
			return it.toLibrary(), nil
		}
	}
	return library.Item{}, library.ErrNotFound
}

// List enumerates items of the given kinds, all kinds when none are given.
func (s *Source) List(ctx context.Context, kinds ...library.Kind) ([]library.Item, error) {
	var out []library.Item
	for start := 0; ; start += listPageSize {
		query := url.Values{}
		query.Set("Recursive", "true")
		query.Set("Fields", itemFields)
		query.Set("StartIndex", strconv.Itoa(start))
		query.Set("Limit", strconv.Itoa(listPageSize))
		if len(kinds) > 0 {
			names := make([]string, len(kinds))
			for i, kind := range kinds {
				names[i] = string(kind)
			}
			query.Set("IncludeItemTypes", strings.Join(names, ","))
		}
		page, err := s.execute(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, it := range page {
			out = append(out, it.toLibrary())
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

func (s *Source) execute(ctx context.Context, query url.Values) ([]item, error) {
	items, err := s.breaker.Execute(func() ([]item, error) {
		return s.fetch(ctx, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, services.Wrap(services.ErrTransient, "jellyfin", "items", "circuit open", err)
	}
	return items, err
}

func (s *Source) itemsPath() string {
	if s.userID != "" {
		return s.baseURL + "/Users/" + url.PathEscape(s.userID) + "/Items"
	}
	return s.baseURL + "/Items"
}

func (s *Source) fetch(ctx context.Context, query url.Values) ([]item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.itemsPath()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build jellyfin request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set(tokenHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "jellyfin", "items", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, library.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "items", fmt.Sprintf("status %d; check api_key", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrTransient, "jellyfin", "items", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var payload itemsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "jellyfin", "items", "decode response", err)
	}
	return payload.Items, nil
}

func (it item) toLibrary() library.Item {
	return library.Item{
		ID:             it.ID,
		Name:           it.Name,
		OriginalTitle:  it.OriginalTitle,
		ProductionYear: it.ProductionYear,
		Kind:           library.Kind(it.Type),
		ProviderIDs:    it.ProviderIDs,
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

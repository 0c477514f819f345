package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"csfdoverlay/internal/api"
	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/config"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/overlay"
	"csfdoverlay/internal/services"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	cfg     *config.Config
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{cfg: cfg, logger: logger, daemon: d}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(httprate.Limit(
		cfg.API.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	))

	r.Get("/healthz", srv.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/web/overlay.js", srv.handleOverlayScript)

	r.Route(api.RoutePrefix, func(r chi.Router) {
		r.Get("/items/{id}", srv.handleItem)
		r.Post("/items/batch", srv.handleBatch)
		r.Get("/client-config", srv.handleClientConfig)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(cfg.Paths.APIToken))
			r.Get("/status", srv.handleStatus)
			r.Get("/unmatched", srv.handleUnmatched)
			r.Get("/entries/{id}", srv.handleEntry)
			r.Post("/search", srv.handleSearch)
			r.Post("/match", srv.handleMatch)
			r.Post("/actions/{action}", srv.handleAction)
		})
	})

	srv.handler = r
	return srv
}

func (s *apiServer) newServer() *http.Server {
	return &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(api.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(api.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleOverlayScript(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.Overlay.InjectionEnabled {
		writeError(w, http.StatusForbidden, "Overlay injection disabled")
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(overlay.Script())
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	allowOverlayOrigin(w)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "item id required")
		return
	}
	data, err := s.daemon.rating.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if data.Status == "" || data.Status == cache.StatusUnknown {
		status = http.StatusAccepted
	}
	writeJSON(w, status, api.FromRating(data))
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	allowOverlayOrigin(w)
	var req api.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "itemIds required")
		return
	}
	ratings, err := s.daemon.rating.GetBatch(r.Context(), req.ItemIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromRatings(ratings))
}

func (s *apiServer) handleClientConfig(w http.ResponseWriter, _ *http.Request) {
	allowOverlayOrigin(w)
	writeJSON(w, http.StatusOK, api.ClientConfig{ClientCacheVersion: s.daemon.rating.ClientCacheVersion()})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.rating.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := api.FromStatus(status, s.daemon.limiter.Snapshot(), time.Now())
	resp.InjectionEnabled = s.cfg.Overlay.InjectionEnabled
	switch {
	case !s.cfg.Overlay.InjectionEnabled:
		resp.InjectionMessage = "overlay injection disabled"
	case s.cfg.Overlay.WebRoot == "":
		resp.InjectionMessage = "overlay.web_root not set; add the script tag manually"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	items, err := s.daemon.rating.Unmatched(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromUnmatched(items))
}

func (s *apiServer) handleEntry(w http.ResponseWriter, r *http.Request) {
	details, err := s.daemon.rating.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromEntryDetails(details))
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query required")
		return
	}
	candidates, err := s.daemon.rating.Search(r.Context(), req.Query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromCandidates(candidates))
}

func (s *apiServer) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req api.MatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ItemID) == "" || strings.TrimSpace(req.CSFDID) == "" {
		writeError(w, http.StatusBadRequest, "ItemId and CsfdId required")
		return
	}
	entry, err := s.daemon.rating.ManualMatch(r.Context(), req.ItemID, req.CSFDID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromEntry(entry))
}

func (s *apiServer) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc := s.daemon.rating
	var (
		count int
		err   error
	)
	switch chi.URLParam(r, "action") {
	case "pause":
		svc.Pause()
		writeJSON(w, http.StatusOK, api.ActionResponse{Status: "paused"})
		return
	case "resume":
		svc.Resume()
		writeJSON(w, http.StatusOK, api.ActionResponse{Status: "resumed"})
		return
	case "reset-cache":
		removed, err := svc.ClearCache(ctx)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.ActionResponse{Status: "cleared", Removed: &removed})
		return
	case "backfill":
		count, err = svc.Backfill(ctx)
	case "retry-notfound":
		count, err = svc.RetryNotFound(ctx)
	case "retry-errors":
		count, err = svc.RetryErrors(ctx)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Enqueued(count))
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Warn("api request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "check daemon logs and the failure journal"),
			logging.String(logging.FieldImpact, "request returned an error to the caller"),
		)
	}
	writeError(w, status, err.Error())
}

func allowOverlayOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}

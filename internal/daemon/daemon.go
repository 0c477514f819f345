package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"csfdoverlay/internal/config"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/overlay"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/rating"
)

const shutdownTimeout = 5 * time.Second

// Queue is the fetch queue lifecycle the daemon owns.
type Queue interface {
	Start(ctx context.Context) error
	Stop()
}

// Dependencies are the runtime components the daemon coordinates.
type Dependencies struct {
	Rating  *rating.Service
	Queue   Queue
	Limiter *ratelimit.Limiter
}

// Daemon runs the fetch queue and HTTP API and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	rating  *rating.Service
	queue   Queue
	limiter *ratelimit.Limiter
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	addr    atomic.Value
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	APIAddress   string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Rating == nil || deps.Queue == nil || deps.Limiter == nil {
		return nil, errors.New("daemon requires config, rating service, queue, and limiter")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		rating:   deps.Rating,
		queue:    deps.Queue,
		limiter:  deps.Limiter,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api"))
	return d, nil
}

// Handler exposes the HTTP API without starting a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Run acquires the daemon lock, patches the web client, starts the fetch
// queue and serves the API until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another csfdoverlay daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.patchWebClient()

	listener, err := net.Listen("tcp", strings.TrimSpace(d.cfg.Paths.APIBind))
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	d.addr.Store(listener.Addr().String())

	if err := d.queue.Start(ctx); err != nil {
		_ = listener.Close()
		return fmt.Errorf("start fetch queue: %w", err)
	}
	defer d.queue.Stop()

	server := d.api.newServer()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	d.logger.Info("csfdoverlay daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", listener.Addr().String()),
	)
	err = g.Wait()
	d.logger.Info("csfdoverlay daemon stopped")
	return err
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	status := Status{Running: d.running.Load(), LockFilePath: d.lockPath}
	if addr, ok := d.addr.Load().(string); ok {
		status.APIAddress = addr
	}
	return status
}

func (d *Daemon) patchWebClient() {
	if !d.cfg.Overlay.InjectionEnabled {
		d.logger.Info("overlay injection disabled via configuration")
		return
	}
	if d.cfg.Overlay.WebRoot == "" {
		return
	}
	index := filepath.Join(d.cfg.Overlay.WebRoot, "index.html")
	changed, err := overlay.PatchFile(index, overlay.WithScriptSrc(d.cfg.OverlayScriptURL()))
	if err != nil {
		logging.WarnWithContext(d.logger, "overlay injection failed", "overlay_inject_failed",
			logging.String("path", index),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check overlay.web_root and file permissions, or run 'csfdoverlay overlay inject'"),
			logging.String(logging.FieldImpact, "web client will not load rating badges"),
		)
		return
	}
	if changed {
		d.logger.Info("overlay script injected", logging.String("path", index))
		return
	}
	d.logger.Debug("overlay script already injected", logging.String("path", index))
}

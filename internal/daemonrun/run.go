package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"csfdoverlay/internal/cache"
	"csfdoverlay/internal/config"
	"csfdoverlay/internal/csfd"
	"csfdoverlay/internal/daemon"
	"csfdoverlay/internal/fetch"
	"csfdoverlay/internal/library"
	"csfdoverlay/internal/logging"
	"csfdoverlay/internal/queue"
	"csfdoverlay/internal/ratelimit"
	"csfdoverlay/internal/rating"
	"csfdoverlay/internal/services/jellyfin"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Library overrides the configured Jellyfin source (useful for tests).
	Library library.Source
}

// Runtime is an assembled but not yet running daemon.
type Runtime struct {
	Daemon *daemon.Daemon
	Store  *cache.Store
	Queue  *queue.Queue
	Rating *rating.Service
}

// Close stops the fetch queue and releases the cache store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Queue != nil {
		r.Queue.Stop()
	}
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Run starts the csfdoverlay daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if strings.TrimSpace(opts.LogLevel) != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "csfdoverlay.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Assemble(signalCtx, cfg, logger, opts.Library)
	if err != nil {
		logger.Error("assemble daemon", logging.Error(err))
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close cache store", logging.Error(err))
		}
	}()

	if err := rt.Daemon.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("csfdoverlay daemon shutting down")
	return nil
}

// Assemble wires the cache, remote client, limiter, fetch queue, rating
// service and daemon from cfg. A nil source uses the configured Jellyfin
// server.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger, source library.Source) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if source == nil {
		jf, err := jellyfin.NewFromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		source = jf
	}

	store, err := cache.Open(ctx, cfg, logging.NewComponentLogger(logger, "cache"))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	clientOpts := []csfd.Option{
		csfd.WithLogger(logger),
		csfd.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
	}
	if cfg.CSFD.FailureJournal {
		clientOpts = append(clientOpts, csfd.WithJournal(csfd.NewJournal(cfg.FailureJournalPath())))
	}
	remote, err := csfd.New(cfg.CSFD.BaseURL, clientOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		MinInterval: cfg.RequestDelay(),
		MinCooldown: cfg.MinCooldown(),
		BackoffCap:  cfg.ThrottleBackoffCap(),
	}, ratelimit.WithLogger(logging.NewComponentLogger(logger, "ratelimit")))

	processor, err := fetch.NewProcessor(fetch.Options{
		Library: source,
		Store:   store,
		Remote:  remote,
		Limiter: limiter,
		Policy: cache.Policy{
			MaxRetries:  cfg.CSFD.MaxRetries,
			CooldownMin: cfg.MinCooldown(),
			BackoffCap:  cfg.TransientBackoffCap(),
		},
		Disabled: !cfg.CSFD.Enabled,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	fetchQueue := queue.New(processor, queue.Options{
		PollInterval:  cfg.PausePollInterval(),
		ThrottleSleep: cfg.ThrottleDefaultSleep(),
		Logger:        logger,
	})

	svc, err := rating.NewService(rating.Options{
		Library: source,
		Store:   store,
		Queue:   fetchQueue,
		Remote:  remote,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d, err := daemon.New(cfg, daemon.Dependencies{Rating: svc, Queue: fetchQueue, Limiter: limiter}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &Runtime{Daemon: d, Store: store, Queue: fetchQueue, Rating: svc}, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.Bool("csfd_enabled", cfg.CSFD.Enabled),
		logging.String("csfd_base_url", cfg.CSFD.BaseURL),
		logging.Duration("request_delay", cfg.RequestDelay()),
		logging.Int("max_retries", cfg.CSFD.MaxRetries),
		logging.String("cache_backend", cfg.Cache.Backend),
		logging.String("cache_path", cfg.CachePath()),
		logging.String("jellyfin_url", cfg.Jellyfin.URL),
		logging.Bool("jellyfin_key_present", strings.TrimSpace(cfg.Jellyfin.APIKey) != ""),
		logging.Bool("overlay_injection", cfg.Overlay.InjectionEnabled),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
	)
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"csfdoverlay/internal/config"
	"csfdoverlay/internal/logging"
)

// ErrCorrupt marks storage whose content cannot be decoded.
var ErrCorrupt = errors.New("cache storage corrupt")

// Backend is the durable map behind a Store. Keys passed to Put and Delete
// are already canonicalized with Key.
type Backend interface {
	Load(ctx context.Context) (map[string]Entry, error)
	Put(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// OpenBackend opens the backend of the given kind at path.
func OpenBackend(kind, path string) (Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	switch kind {
	case config.CacheBackendSQLite, "":
		return OpenSQLite(path)
	case config.CacheBackendBolt:
		return OpenBolt(path)
	case config.CacheBackendJSON:
		return OpenJSONFile(path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}

// Open opens the configured backend and loads it into a Store. Storage that
// is corrupt or has an incompatible schema is renamed with a .corrupt suffix
// and recreated empty.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	kind, path := cfg.Cache.Backend, cfg.CachePath()

	store, err := openAndLoad(ctx, kind, path, logger)
	if err == nil {
		return store, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !errors.Is(err, ErrCorrupt) && !errors.Is(err, ErrSchemaMismatch) {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}
	quarantine := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	logging.WarnWithContext(logger, "cache storage unreadable; starting empty", "cache_corrupt",
		logging.String("path", path),
		logging.String("moved_to", quarantine),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect or delete the moved file"),
		logging.String(logging.FieldImpact, "all items will be looked up again"),
	)
	if renameErr := os.Rename(path, quarantine); renameErr != nil {
		return nil, fmt.Errorf("quarantine cache %q: %w", path, renameErr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return openAndLoad(ctx, kind, path, logger)
}

func openAndLoad(ctx context.Context, kind, path string, logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackend(kind, path)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, backend, WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

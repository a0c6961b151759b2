package session

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
)

// Open builds the configured durable store behind an LRU cache. The returned
// close function releases backend resources and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig) (*CachedStore, func() error, error) {
	var (
		origin  Store
		closeFn = func() error { return nil }
	)

	switch cfg.Driver {
	case "memory":
		origin = NewMemoryStore()
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		origin, closeFn = pg, pg.Close
	case "s3":
		s3, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		origin = s3
	case "file", "":
		fs, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		origin = fs
	default:
		return nil, nil, fmt.Errorf("unknown session store driver %q", cfg.Driver)
	}

	cached, err := NewCachedStore(origin, cfg.CacheSize)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return cached, closeFn, nil
}

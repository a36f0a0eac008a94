package storage

import (
	"context"
	"fmt"

	"github.com/debemdeboas/draftsync/internal/config"
	"github.com/debemdeboas/draftsync/internal/util/compression"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		compressor, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return OpenSQLite(cfg.Path, compressor)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

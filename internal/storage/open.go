package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"alerts_ingestor/internal/config"
)

type opener func(ctx context.Context, cfg config.StoreConfig) (Store, error)

var openers = map[string]opener{
	config.BackendSQLite: openSQLite,
	config.BackendMongo:  openMongo,
}

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	open, ok := openers[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return open(ctx, cfg)
}

func openSQLite(_ context.Context, cfg config.StoreConfig) (Store, error) {
	if cfg.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return NewSQLite(cfg.SQLitePath)
}

func openMongo(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	return OpenMongo(ctx, cfg.Mongo)
}

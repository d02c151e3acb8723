package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jfrid/logsleuth/internal/storage/clickhouse"
	"github.com/jfrid/logsleuth/internal/storage/memory"
	"github.com/jfrid/logsleuth/internal/storage/sqlite"
)

// Config selects and parameterizes a run-history backend.
type Config struct {
	// Backend is one of "memory", "sqlite" or "clickhouse".
	Backend string
	// Path is the sqlite database file.
	Path string
	// ClickHouseAddr is the native-protocol address of the ClickHouse
	// backend.
	ClickHouseAddr string
}

// New creates a run-history store for the configured backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		store, err := sqlite.New(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return store, nil

	case "clickhouse":
		chCfg := clickhouse.DefaultConfig()
		if cfg.ClickHouseAddr != "" {
			chCfg.Addr = cfg.ClickHouseAddr
		}
		store, err := clickhouse.NewStore(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating clickhouse store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, clickhouse)", cfg.Backend)
	}
}

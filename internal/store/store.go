// Package store opens the configured backend for gems and batch history.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/inventory"
	"github.com/JonMunkholm/gemstock/internal/store/postgres"
	"github.com/JonMunkholm/gemstock/internal/store/sqlite"
)

// Store is what the service needs from a backend.
type Store interface {
	inventory.GemStore
	core.HistoryStore
	core.HistoryPruner
	RecentBatches(ctx context.Context, limit int) ([]core.BatchLog, error)
}

// Backend is an open store and the function that releases it.
type Backend struct {
	Store
	Driver string
	close  func() error
}

// Close releases the connection pool or database file.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the backend named by cfg.Driver. For PostgreSQL, pending
// migrations are applied when cfg.Migrate is set; the SQLite schema is
// always applied.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Backend, error) {
	switch driver := strings.ToLower(cfg.Driver); driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := postgres.Migrate(pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Backend{
			Store:  postgres.New(pool),
			Driver: driver,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened sqlite database", "path", cfg.SQLitePath)
		return &Backend{Store: s, Driver: driver, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

package memory

import (
	"context"
	"fmt"
	"log/slog"

	"korabot/internal/config"
	"korabot/internal/domain"
)

// Store is a HistoryStore that can also list raw entries and report
// whether its backend is reachable.
type Store interface {
	domain.HistoryStore
	Entries(ctx context.Context, senderID string) ([]domain.HistoryEntry, error)
	Ping(ctx context.Context) error
}

// Open returns the history backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DBPath, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

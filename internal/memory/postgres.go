package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"korabot/internal/domain"
)

// PostgresStore implements domain.HistoryStore on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool, logger: logger, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS history (
			id         BIGSERIAL PRIMARY KEY,
			sender_id  TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_sender ON history(sender_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_history_time ON history(created_at);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, senderID, text string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history (sender_id, text, created_at) VALUES ($1, $2, $3)`,
		senderID, text, at,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, senderID string) ([]string, error) {
	entries, err := s.Entries(ctx, senderID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts, nil
}

func (s *PostgresStore) Entries(ctx context.Context, senderID string) ([]domain.HistoryEntry, error) {
	cutoff := s.now().Add(-domain.HistoryWindow)
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, text, created_at FROM history
		 WHERE sender_id = $1 AND created_at >= $2
		 ORDER BY created_at ASC, id ASC`, senderID, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.SenderID, &e.Text, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history WHERE created_at < $1`, now.Add(-domain.HistoryWindow))
	if err != nil {
		return 0, fmt.Errorf("sweep history: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("history swept", "deleted", n)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

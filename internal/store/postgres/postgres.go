// Package postgres stores gems and the batch history in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

// Open creates a connection pool from the database config and verifies it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// Store implements inventory.GemStore and core.HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ inventory.GemStore = (*Store)(nil)
	_ core.HistoryStore  = (*Store)(nil)
	_ core.HistoryPruner = (*Store)(nil)
)

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const insertGemSQL = `
INSERT INTO gems (
    id, gem_type, carat, cut, color, clarity, shape, description, measurements,
    origin, treatment, price, cost_price, certificate_number, certificate_lab,
    status, notes, source_line, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

// InsertGem writes one gem. Failures come back as *ingest.SinkError with a
// user-facing message; the driver error is kept for the logs.
func (s *Store) InsertGem(ctx context.Context, g inventory.Gem) error {
	_, err := s.pool.Exec(ctx, insertGemSQL,
		g.ID, g.GemType, g.Carat, g.Cut, g.Color, g.Clarity, g.Shape,
		g.Description, g.Measurements, g.Origin, g.Treatment, g.Price,
		g.CostPrice, g.CertificateNumber, g.CertificateLab, g.Status,
		g.Notes, int32(g.SourceLine), g.CreatedAt,
	)
	if err != nil {
		return core.ToSinkError(fmt.Errorf("insert gem %s: %w", g.CertificateNumber, err))
	}
	return nil
}

const insertBatchSQL = `
INSERT INTO ingest_batches (
    id, file_name, origin, attempt, client_ip, user_agent,
    total_rows, success_count, error_count, cancelled, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// RecordBatch writes the run summary and its failed rows in one transaction.
func (s *Store) RecordBatch(ctx context.Context, b core.BatchLog) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertBatchSQL,
			b.ID, b.FileName, b.Origin, int32(b.Attempt),
			nullText(b.ClientIP), nullText(b.UserAgent),
			int32(b.Summary.TotalRows), int32(b.Summary.SuccessCount), int32(b.Summary.ErrorCount),
			b.Cancelled, b.StartedAt, b.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		if len(b.Failures) == 0 {
			return nil
		}
		rows := make([][]any, len(b.Failures))
		for i, f := range b.Failures {
			rows[i] = []any{b.ID, int32(f.LineNumber), string(f.Source), f.Message}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"ingest_failures"},
			[]string{"batch_id", "line_number", "source", "message"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy batch failures: %w", err)
		}
		return nil
	})
}

// RecentBatches returns the newest batch summaries with their failures,
// newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]core.BatchLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, file_name, origin, attempt, client_ip, user_agent,
       total_rows, success_count, error_count, cancelled, started_at, finished_at
FROM ingest_batches
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []core.BatchLog
	for rows.Next() {
		var (
			b                      core.BatchLog
			ip, ua                 pgtype.Text
			attempt                int32
			total, success, failed int32
		)
		if err := rows.Scan(&b.ID, &b.FileName, &b.Origin, &attempt, &ip, &ua,
			&total, &success, &failed, &b.Cancelled, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Attempt = int(attempt)
		b.ClientIP = ip.String
		b.UserAgent = ua.String
		b.Summary.TotalRows = int(total)
		b.Summary.SuccessCount = int(success)
		b.Summary.ErrorCount = int(failed)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Failures, err = s.failures(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) failures(ctx context.Context, batchID uuid.UUID) ([]core.FailureLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT line_number, source, message FROM ingest_failures WHERE batch_id = $1 ORDER BY line_number`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.FailureLog, error) {
		var (
			line   int32
			source string
			f      core.FailureLog
		)
		if err := row.Scan(&line, &source, &f.Message); err != nil {
			return f, fmt.Errorf("scan failure: %w", err)
		}
		f.LineNumber = int(line)
		f.Source = ingest.FailureSource(source)
		return f, nil
	})
}

// PruneBatches deletes batches that finished before the cutoff. Their
// failure rows go with them.
func (s *Store) PruneBatches(ctx context.Context, finishedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingest_batches WHERE finished_at < $1`, finishedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

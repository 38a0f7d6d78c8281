// Package sqlite stores gems and the batch history in a local SQLite file.
// It backs the CLI and small single-machine deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

//go:embed schema.sql
var schemaSQL string

// Store implements inventory.GemStore and core.HistoryStore.
type Store struct {
	db *sql.DB
}

var (
	_ inventory.GemStore = (*Store)(nil)
	_ core.HistoryStore  = (*Store)(nil)
	_ core.HistoryPruner = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the
// schema. An empty path opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != "" {
		// Pragmas go in the DSN so every pooled connection gets them.
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
			path,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == "" {
		// Each in-memory connection is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}
	return &Store{db: db}, nil
}

// timeLayout is fixed width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const insertGemSQL = `
INSERT INTO gems (
    id, gem_type, carat, cut, color, clarity, shape, description, measurements,
    origin, treatment, price, cost_price, certificate_number, certificate_lab,
    status, notes, source_line, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertGem writes one gem. Decimals are stored as text so no precision is lost.
func (s *Store) InsertGem(ctx context.Context, g inventory.Gem) error {
	_, err := s.db.ExecContext(ctx, insertGemSQL,
		g.ID.String(), g.GemType, inventory.DecimalString(g.Carat), g.Cut, g.Color,
		g.Clarity, g.Shape, g.Description, g.Measurements, g.Origin, g.Treatment,
		inventory.DecimalString(g.Price), nullable(inventory.DecimalString(g.CostPrice)),
		g.CertificateNumber, g.CertificateLab, g.Status, g.Notes,
		g.SourceLine, formatTime(g.CreatedAt),
	)
	if err != nil {
		return core.ToSinkError(fmt.Errorf("insert gem %s: %w", g.CertificateNumber, err))
	}
	return nil
}

// RecordBatch writes the run summary and its failed rows in one transaction.
func (s *Store) RecordBatch(ctx context.Context, b core.BatchLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO ingest_batches (
    id, file_name, origin, attempt, client_ip, user_agent,
    total_rows, success_count, error_count, cancelled, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.FileName, b.Origin, b.Attempt,
		nullable(b.ClientIP), nullable(b.UserAgent),
		b.Summary.TotalRows, b.Summary.SuccessCount, b.Summary.ErrorCount,
		b.Cancelled, formatTime(b.StartedAt), formatTime(b.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ingest_failures (batch_id, line_number, source, message) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare failures: %w", err)
	}
	defer stmt.Close()

	for _, f := range b.Failures {
		if _, err := stmt.ExecContext(ctx, b.ID.String(), f.LineNumber, string(f.Source), f.Message); err != nil {
			return fmt.Errorf("insert failure line %d: %w", f.LineNumber, err)
		}
	}
	return tx.Commit()
}

// RecentBatches returns the newest batch summaries with their failures.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]core.BatchLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, file_name, origin, attempt, COALESCE(client_ip, ''), COALESCE(user_agent, ''),
       total_rows, success_count, error_count, cancelled, started_at, finished_at
FROM ingest_batches
ORDER BY started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []core.BatchLog
	for rows.Next() {
		var (
			b                 core.BatchLog
			id                string
			started, finished string
		)
		if err := rows.Scan(&id, &b.FileName, &b.Origin, &b.Attempt, &b.ClientIP, &b.UserAgent,
			&b.Summary.TotalRows, &b.Summary.SuccessCount, &b.Summary.ErrorCount,
			&b.Cancelled, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("batch id %q: %w", id, err)
		}
		b.StartedAt, _ = time.Parse(timeLayout, started)
		b.FinishedAt, _ = time.Parse(timeLayout, finished)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Failures, err = s.failures(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) failures(ctx context.Context, batchID uuid.UUID) ([]core.FailureLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line_number, source, message FROM ingest_failures WHERE batch_id = ? ORDER BY line_number`,
		batchID.String())
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []core.FailureLog
	for rows.Next() {
		var (
			f      core.FailureLog
			source string
		)
		if err := rows.Scan(&f.LineNumber, &source, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Source = ingest.FailureSource(source)
		out = append(out, f)
	}
	return out, rows.Err()
}

// PruneBatches deletes batches that finished before the cutoff. Their
// failure rows go with them.
func (s *Store) PruneBatches(ctx context.Context, finishedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingest_batches WHERE finished_at < ?`,
		formatTime(finishedBefore))
	if err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}
	return res.RowsAffected()
}

// CountGems returns the number of stored gems.
func (s *Store) CountGems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM gems").Scan(&n)
	return n, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

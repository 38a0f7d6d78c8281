package postgres

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 4, "every migration needs an up and a down file")

	src, err := iofs.New(migrationFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	_, err = src.Next(next)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

// openTestStore connects to GEMSTOCK_TEST_DATABASE_URL, migrates it and
// clears the tables. Tests are skipped when it is not set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GEMSTOCK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GEMSTOCK_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := config.Defaults().Database
	cfg.URL = dsn
	pool, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(pool))
	_, err = pool.Exec(ctx, "TRUNCATE gems, ingest_failures, ingest_batches")
	require.NoError(t, err)
	return New(pool)
}

func testGem(t *testing.T, cert string) inventory.Gem {
	t.Helper()
	b := inventory.NewBuilder(inventory.DefaultOptions())
	row := ingest.RawRow{LineNumber: 2, Fields: inventory.ExampleRow(inventory.DefaultOptions())}
	row.Fields[inventory.ColCertificateNumber] = cert
	g, err := b.Build(row)
	require.NoError(t, err)
	return g
}

func TestStore_InsertGem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGem(ctx, testGem(t, "GIA-1001")))

	err := s.InsertGem(ctx, testGem(t, "GIA-1001"))
	var se *ingest.SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "DB001", se.Code)
	assert.Equal(t, "A gem with this certificate number already exists", se.Message)
}

func TestStore_RecordBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	entry := core.BatchLog{
		ID:         uuid.New(),
		FileName:   "stock.csv",
		Origin:     core.OriginCLI,
		Attempt:    1,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Summary:    ingest.Summary{TotalRows: 3, SuccessCount: 1, ErrorCount: 2},
		Failures: []core.FailureLog{
			{LineNumber: 3, Source: ingest.SourceValidation, Message: "Valid Carat weight is required"},
			{LineNumber: 4, Source: ingest.SourceSink, Message: ingest.DefaultSinkMessage},
		},
	}
	require.NoError(t, s.RecordBatch(ctx, entry))

	batches, err := s.RecentBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, entry.ID, batches[0].ID)
	assert.Equal(t, entry.Summary, batches[0].Summary)
	assert.Empty(t, batches[0].ClientIP)
	assert.Equal(t, entry.Failures, batches[0].Failures)
}

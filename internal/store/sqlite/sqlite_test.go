package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gems.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testGem(t *testing.T, cert string) inventory.Gem {
	t.Helper()
	opts := inventory.DefaultOptions()
	row := ingest.RawRow{LineNumber: 2, Fields: inventory.ExampleRow(opts)}
	row.Fields[inventory.ColCertificateNumber] = cert
	g, err := inventory.NewBuilder(opts).Build(row)
	require.NoError(t, err)
	return g
}

func TestStore_InsertGem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := testGem(t, "GIA-2001")
	require.NoError(t, s.InsertGem(ctx, g))

	var carat, price string
	var cost *string
	require.NoError(t, s.db.QueryRow(
		"SELECT carat, price, cost_price FROM gems WHERE id = ?", g.ID.String()).Scan(&carat, &price, &cost))
	assert.Equal(t, "1.25", carat)
	assert.Equal(t, "15000", price)
	require.NotNil(t, cost)
	assert.Equal(t, "10000", *cost)

	n, err := s.CountGems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_InsertGemDuplicateCertificate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGem(ctx, testGem(t, "GIA-2002")))
	err := s.InsertGem(ctx, testGem(t, "GIA-2002"))

	var se *ingest.SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "DB001", se.Code)
	assert.Equal(t, "A gem with this certificate number already exists", se.Message)
}

func TestStore_NullableColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	opts := inventory.DefaultOptions()
	fields := inventory.ExampleRow(opts)
	fields[inventory.ColCostPrice] = ""
	fields[inventory.ColClarity] = ""
	g, err := inventory.NewBuilder(opts).Build(ingest.RawRow{LineNumber: 5, Fields: fields})
	require.NoError(t, err)
	require.NoError(t, s.InsertGem(ctx, g))

	var cost, clarity *string
	require.NoError(t, s.db.QueryRow(
		"SELECT cost_price, clarity FROM gems WHERE id = ?", g.ID.String()).Scan(&cost, &clarity))
	assert.Nil(t, cost)
	assert.Nil(t, clarity)
}

func TestStore_RecordBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	entry := core.BatchLog{
		ID:         uuid.New(),
		FileName:   "stock.csv",
		Origin:     core.OriginWatch,
		Attempt:    2,
		UserAgent:  "curl/8.0",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Summary:    ingest.Summary{TotalRows: 4, SuccessCount: 2, ErrorCount: 2},
		Cancelled:  true,
		Failures: []core.FailureLog{
			{LineNumber: 5, Source: ingest.SourceSink, Message: ingest.DefaultSinkMessage},
			{LineNumber: 3, Source: ingest.SourceValidation, Message: "Valid Price is required"},
		},
	}
	require.NoError(t, s.RecordBatch(ctx, entry))

	got, err := s.RecentBatches(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	b := got[0]
	assert.Equal(t, entry.ID, b.ID)
	assert.Equal(t, core.OriginWatch, b.Origin)
	assert.Equal(t, 2, b.Attempt)
	assert.Empty(t, b.ClientIP)
	assert.Equal(t, "curl/8.0", b.UserAgent)
	assert.True(t, b.Cancelled)
	assert.Equal(t, entry.Summary, b.Summary)
	assert.True(t, start.Equal(b.StartedAt))
	require.Len(t, b.Failures, 2)
	assert.Equal(t, 3, b.Failures[0].LineNumber, "failures come back in line order")
	assert.Equal(t, ingest.SourceValidation, b.Failures[0].Source)
}

func TestStore_RecordBatchRollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := core.BatchLog{
		ID:        uuid.New(),
		FileName:  "dup.csv",
		Origin:    core.OriginCLI,
		StartedAt: time.Now(),
		Failures: []core.FailureLog{
			{LineNumber: 2, Source: ingest.SourceSink, Message: "a"},
			{LineNumber: 2, Source: ingest.SourceSink, Message: "b"},
		},
	}
	err := s.RecordBatch(ctx, entry)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "line 2"))

	got, err := s.RecentBatches(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InsertGem(context.Background(), testGem(t, "GIA-3001")))
	n, err := s.CountGems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_PruneBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{100 * 24 * time.Hour, 91 * 24 * time.Hour, time.Hour} {
		require.NoError(t, s.RecordBatch(ctx, core.BatchLog{
			ID:         uuid.New(),
			FileName:   "stock.csv",
			Origin:     core.OriginWeb,
			Attempt:    1,
			StartedAt:  now.Add(-age),
			FinishedAt: now.Add(-age),
			Summary:    ingest.Summary{TotalRows: 1, ErrorCount: 1},
			Failures:   []core.FailureLog{{LineNumber: 2, Source: ingest.SourceValidation, Message: "Price is required"}},
		}))
	}

	pruned, err := s.PruneBatches(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	got, err := s.RecentBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Failures, 1)

	var orphans int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT count(*) FROM ingest_failures").Scan(&orphans))
	assert.Equal(t, 1, orphans, "failures are deleted with their batch")
}

func TestStore_TimesOrderWithinASecond(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	whole := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)
	for _, at := range []time.Time{half, whole} {
		require.NoError(t, s.RecordBatch(ctx, core.BatchLog{
			ID:         uuid.New(),
			FileName:   at.Format(time.StampMilli),
			Origin:     core.OriginCLI,
			Attempt:    1,
			StartedAt:  at,
			FinishedAt: at,
		}))
	}

	got, err := s.RecentBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].StartedAt.Equal(half), "newest first, got %v", got[0].StartedAt)
	assert.True(t, got[1].StartedAt.Equal(whole))

	// The whole second finished before the half second, so only it goes.
	pruned, err := s.PruneBatches(ctx, half)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	got, err = s.RecentBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].StartedAt.Equal(half))
}

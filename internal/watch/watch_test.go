package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
)

func newIngester(t *testing.T) (*core.Service, *[]string) {
	t.Helper()
	validator := ingest.NewValidator(ingest.Schema{
		{Key: "sku", Type: ingest.FieldText, Required: true},
		{Key: "carat", Type: ingest.FieldNumeric, Required: true},
	})
	var origins []string
	sink := ingest.SinkFunc(func(ctx context.Context, row ingest.RawRow) error {
		origins = append(origins, core.GetOriginFromContext(ctx))
		return nil
	})
	return core.NewService(validator, sink, config.Defaults().Upload), &origins
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	svc, origins := newIngester(t)
	w := New(dir, 0, svc)

	path := writeFile(t, dir, "stock.csv", "sku,carat\nA,1.5\nB,heavy\nC,2\n")
	res, err := w.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ingest.Summary{TotalRows: 3, SuccessCount: 2, ErrorCount: 1}, res.Summary)
	assert.Equal(t, filepath.Join(dir, UploadedDir, "stock.csv"), res.MovedTo)
	assert.NoFileExists(t, path)
	assert.FileExists(t, res.MovedTo)
	assert.Equal(t, []string{core.OriginWatch, core.OriginWatch}, *origins)

	require.Equal(t, filepath.Join(dir, "stock - failed.csv"), res.Report)
	report, err := os.ReadFile(res.Report)
	require.NoError(t, err)
	assert.Equal(t, "_line,_error,sku,carat\n3,Valid carat is required,B,heavy\n", string(report))
}

func TestProcessFile_NoReportWhenAllRowsSaved(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newIngester(t)
	w := New(dir, 0, svc)

	res, err := w.ProcessFile(context.Background(), writeFile(t, dir, "clean.csv", "sku,carat\nA,1\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Report)
	assert.NoFileExists(t, filepath.Join(dir, "clean - failed.csv"))
}

func TestProcessFile_StructuralErrorLeavesFile(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newIngester(t)
	w := New(dir, 0, svc)

	path := writeFile(t, dir, "header.csv", "sku,carat\n")
	res, err := w.ProcessFile(context.Background(), path)
	require.ErrorIs(t, err, ingest.ErrStructural)
	assert.Empty(t, res.MovedTo)
	assert.FileExists(t, path)
}

func TestProcessFile_NameClashInUploaded(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newIngester(t)
	w := New(dir, 0, svc)

	first, err := w.ProcessFile(context.Background(), writeFile(t, dir, "stock.csv", "sku,carat\nA,1\n"))
	require.NoError(t, err)
	second, err := w.ProcessFile(context.Background(), writeFile(t, dir, "stock.csv", "sku,carat\nB,2\n"))
	require.NoError(t, err)

	assert.NotEqual(t, first.MovedTo, second.MovedTo)
	assert.FileExists(t, first.MovedTo)
	assert.FileExists(t, second.MovedTo)
	assert.True(t, strings.HasPrefix(filepath.Base(second.MovedTo), "stock "))
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"stock.csv", true},
		{"dir/Stock.XLSX", true},
		{"stock - failed.csv", false},
		{".stock.csv", false},
		{"~$stock.xlsx", false},
		{"stock.txt", false},
		{"stock", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Accepts(tt.path))
		})
	}
}

func TestRun_ProcessesExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newIngester(t)

	writeFile(t, dir, "existing.csv", "sku,carat\nA,1\n")
	writeFile(t, dir, "notes.txt", "ignored")

	results := make(chan Result, 4)
	w := New(dir, 50*time.Millisecond, svc, WithOnProcessed(func(res Result, err error) {
		assert.NoError(t, err)
		results <- res
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	next := func() Result {
		select {
		case res := <-results:
			return res
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for file")
			return Result{}
		}
	}

	res := next()
	assert.Equal(t, filepath.Join(dir, "existing.csv"), res.Source)

	writeFile(t, dir, "dropped.csv", "sku,carat\nB,2\nC,\n")
	res = next()
	assert.Equal(t, filepath.Join(dir, "dropped.csv"), res.Source)
	assert.Equal(t, 1, res.Summary.ErrorCount)
	assert.FileExists(t, filepath.Join(dir, "dropped - failed.csv"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

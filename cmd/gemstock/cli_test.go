package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// stockFile writes a valid upload with one row per certificate; an empty
// carat makes the row invalid.
func stockFile(t *testing.T, dir string, carats map[string]string) string {
	t.Helper()
	opts := inventory.DefaultOptions()
	cols := inventory.Schema(opts).Columns()

	lines := []string{strings.Join(cols, ",")}
	for _, cert := range []string{"GIA-1", "GIA-2", "GIA-3"} {
		carat, ok := carats[cert]
		if !ok {
			continue
		}
		example := inventory.ExampleRow(opts)
		example[inventory.ColCertificateNumber] = cert
		example[inventory.ColCarat] = carat
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = example[c]
		}
		lines = append(lines, strings.Join(vals, ","))
	}

	path := filepath.Join(dir, "stock.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestTemplateCommand(t *testing.T) {
	out, err := run(t, "template")
	require.NoError(t, err)

	table, err := ingest.ParseString(out)
	require.NoError(t, err)
	assert.Equal(t, inventory.Schema(inventory.DefaultOptions()).Columns(), table.Header)
	assert.Len(t, table.Rows, 1)
}

func TestTemplateCommand_XLSXNeedsOutput(t *testing.T) {
	_, err := run(t, "template", "--format", "xlsx")
	assert.ErrorContains(t, err, "--output")

	path := filepath.Join(t.TempDir(), "template.xlsx")
	_, err = run(t, "template", "--format", "xlsx", "--output", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = run(t, "template", "--format", "ods")
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
}

func TestValidateCommand(t *testing.T) {
	path := stockFile(t, t.TempDir(), map[string]string{"GIA-1": "1.2", "GIA-2": ""})

	out, err := run(t, "validate", path)
	assert.ErrorContains(t, err, "1 of 2 rows are invalid")
	assert.Contains(t, out, "Carat weight is required")
	assert.Contains(t, out, "GIA-2")
	assert.NotContains(t, out, "GIA-1", "valid rows are hidden without --all")

	out, err = run(t, "validate", "--all", path)
	require.Error(t, err)
	assert.Contains(t, out, "GIA-1")
}

func TestIngestCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "gems.db")
	path := stockFile(t, dir, map[string]string{"GIA-1": "1.2", "GIA-2": "heavy", "GIA-3": "0.9"})

	out, err := run(t, "ingest", "--quiet", "--sqlite", db, path)
	assert.ErrorContains(t, err, "1 of 3 rows failed")
	assert.Contains(t, out, "3 rows, 2 saved, 1 failed")

	report := filepath.Join(dir, "stock - failed.csv")
	require.FileExists(t, report)
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "_line,_error,"))
	assert.Contains(t, string(data), "GIA-2")

	// Loading the same file again fails every row on the certificate number.
	out, err = run(t, "ingest", "--quiet", "--no-report", "--sqlite", db, path)
	assert.ErrorContains(t, err, "3 of 3 rows failed")
	assert.Contains(t, out, "certificate number already exists")

	out, err = run(t, "history", "--sqlite", db)
	require.NoError(t, err)
	assert.Contains(t, out, "stock.csv")
	assert.Contains(t, out, "cli")
}

func TestIngestCommand_StructuralError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := run(t, "ingest", "--sqlite", filepath.Join(dir, "gems.db"), path)
	assert.ErrorIs(t, err, ingest.ErrStructural)

	text := errorText(err)
	assert.Contains(t, text, "(Code: FILE002)")
	assert.Contains(t, text, err.Error(), "technical text is kept")
}

func TestErrorText_UnknownErrorsPrintAsIs(t *testing.T) {
	err := errors.New("2 of 3 rows failed")
	assert.Equal(t, "2 of 3 rows failed", errorText(err))
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	_, err := run(t, "migrate", "--sqlite", filepath.Join(t.TempDir(), "gems.db"))
	assert.ErrorContains(t, err, "postgres")
}

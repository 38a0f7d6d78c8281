package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// FailedRowsOf returns the rows of b whose last attempt failed.
func FailedRowsOf(b *ingest.Batch) []FailedRow {
	failed := b.Failed()
	rows := make([]FailedRow, len(failed))
	for i, rec := range failed {
		rows[i] = FailedRow{
			LineNumber: rec.Row.LineNumber,
			Source:     rec.Source,
			Reason:     rec.Error,
			Fields:     rec.Row.Fields,
		}
	}
	return rows
}

// WriteFailedRows writes failed rows as CSV: the line number and reason
// followed by the original columns, so the file can be fixed and uploaded
// again after dropping the first two columns.
func WriteFailedRows(w io.Writer, header []string, rows []FailedRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(append([]string{"_line", "_error"}, header...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, 0, len(header)+2)
		record = append(record, strconv.Itoa(row.LineNumber), row.Reason)
		for _, col := range header {
			record = append(record, row.Fields[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write line %d: %w", row.LineNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FailedRowsFileName names the failure report for an uploaded file:
// "stock.csv" becomes "stock - failed.csv".
func FailedRowsFileName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + " - failed.csv"
}

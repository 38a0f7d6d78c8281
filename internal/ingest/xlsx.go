package ingest

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first worksheet of a workbook. Row numbers are the
// worksheet's own row numbers, so they match what the user sees in Excel.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, structural("open xlsx", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, structural("workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, structural("read worksheet "+sheets[0], err)
	}

	var t *Table
	for i, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		if t == nil {
			header, err := cleanHeader(row)
			if err != nil {
				return nil, err
			}
			t = &Table{Header: header}
			continue
		}
		t.Rows = append(t.Rows, newRawRow(i+1, t.Header, row))
	}

	if t == nil {
		return nil, structural("empty file", nil)
	}
	if len(t.Rows) == 0 {
		return nil, structural("no data rows after header", nil)
	}
	return t, nil
}

package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateSheet is the worksheet name used by TemplateXLSX.
const TemplateSheet = "Inventory"

// Template returns a delimited file holding the schema header and one example
// row. Parsing the output unchanged yields one row that passes validation, as
// long as example satisfies the schema.
func Template(schema Schema, example map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = Delimiter
	if err := w.Write(schema.Columns()); err != nil {
		return nil, fmt.Errorf("write template header: %w", err)
	}
	if err := w.Write(exampleValues(schema, example)); err != nil {
		return nil, fmt.Errorf("write template example: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}

// TemplateXLSX returns the same template as a workbook.
func TemplateXLSX(schema Schema, example map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]string{schema.Columns(), exampleValues(schema, example)}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(TemplateSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write template row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exampleValues(schema Schema, example map[string]string) []string {
	values := make([]string, len(schema))
	for i, spec := range schema {
		values[i] = example[spec.Key]
	}
	return values
}

package ingest

// parser.go turns an uploaded file into ordered RawRows.
//
// The parser is purely structural: it never looks at what a value means.
// Short rows are padded with empty strings and extra trailing values are
// dropped, so a row only ever fails later, in the validator.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Delimiter separates values on a line.
const Delimiter = ','

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Table is the parsed content of one file.
type Table struct {
	Header []string
	Rows   []RawRow
}

// ParseString parses delimited text held in memory.
func ParseString(s string) (*Table, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads delimited text. The first record is the header; every later
// non-empty line becomes one RawRow.
func Parse(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, structural("read file", err)
	}
	data = sanitizeUTF8(bytes.TrimPrefix(data, byteOrderMark))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, structural("empty file", nil)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var t *Table
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, structural("unreadable delimited text", err)
		}
		line, _ := cr.FieldPos(0)

		if t == nil {
			header, err := cleanHeader(record)
			if err != nil {
				return nil, err
			}
			t = &Table{Header: header}
			continue
		}

		if isEmptyRow(record) {
			continue
		}
		t.Rows = append(t.Rows, newRawRow(line, t.Header, record))
	}

	if t == nil {
		return nil, structural("no header row", nil)
	}
	if len(t.Rows) == 0 {
		return nil, structural("no data rows after header", nil)
	}
	return t, nil
}

// ParseFile picks a parser from the file extension.
func ParseFile(name string, r io.Reader) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt", "":
		return Parse(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, structural(fmt.Sprintf("cannot read %s files", ext), ErrUnsupportedFormat)
	}
}

// newRawRow maps positional values onto header names. Missing trailing values
// become "" and values past the last header column are ignored.
func newRawRow(line int, header, values []string) RawRow {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		v := ""
		if i < len(values) {
			v = CleanValue(values[i])
		}
		fields[name] = v
	}
	return RawRow{LineNumber: line, Fields: fields}
}

// cleanHeader normalizes column names. Blank names are kept as "" placeholders
// so positions still line up, but at least one real name is required and no
// name may repeat.
func cleanHeader(record []string) ([]string, error) {
	header := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	named := 0
	for i, h := range record {
		name := CleanValue(h)
		header[i] = name
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, structural(fmt.Sprintf("duplicate column %q", name), nil)
		}
		seen[key] = true
		named++
	}
	if named == 0 {
		return nil, structural("header row has no column names", nil)
	}
	return header, nil
}

// CleanValue trims whitespace and one pair of matching surrounding quotes.
func CleanValue(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if CleanValue(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD so spreadsheets
// exported as Windows-1252 still parse.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}

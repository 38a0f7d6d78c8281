// Package ingest parses, validates and loads bulk inventory files.
//
// The pipeline is parse once, then validate and write each row in file order:
//
//	text ─► Parse ─► []RawRow ─► Validator ─► Sink
//	                                 │
//	                                 └─► Failed (reasons)
//
// A Controller drives one Batch at a time, strictly sequentially, and reports
// every row transition to an observer so a UI can show live progress.
package ingest

import (
	"strings"
)

// RawRow is one data line of an uploaded file.
// Rows are immutable once parsed.
type RawRow struct {
	LineNumber int               // 1-based source line; the header is line 1
	Fields     map[string]string // column name -> cleaned value
}

// Get returns the value for a column, matching the header name exactly first
// and falling back to a case-insensitive match.
func (r RawRow) Get(column string) string {
	if v, ok := r.Fields[column]; ok {
		return v
	}
	for k, v := range r.Fields {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return ""
}

// Verdict is the validator's outcome for a single row.
type Verdict struct {
	Valid   bool
	Reasons []string // empty iff Valid
}

// Status is the lifecycle state of an IngestRecord.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FailureSource tells which stage rejected a row.
type FailureSource string

const (
	SourceNone       FailureSource = ""
	SourceValidation FailureSource = "validation"
	SourceSink       FailureSource = "sink"
)

// IngestRecord tracks one RawRow through a batch run.
type IngestRecord struct {
	Row     RawRow
	Status  Status
	Source  FailureSource
	Reasons []string // validator reasons when Source is SourceValidation
	Error   string   // non-empty iff Status is StatusFailed
}

// Summary is the aggregate state of a batch.
type Summary struct {
	TotalRows    int `json:"total_rows"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// Processed returns the number of rows that reached a terminal status.
func (s Summary) Processed() int {
	return s.SuccessCount + s.ErrorCount
}

// Complete reports whether every row has a terminal status.
func (s Summary) Complete() bool {
	return s.Processed() == s.TotalRows
}

// Progress is emitted after each row transition.
type Progress struct {
	Record  IngestRecord
	Index   int // position of Record within the batch
	Summary Summary
}

// ProgressFunc receives progress events. It is called on the controller's
// goroutine and must not block for long.
type ProgressFunc func(Progress)

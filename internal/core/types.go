package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// UploadPhase indicates where a session's current run stands.
type UploadPhase string

const (
	PhaseRunning   UploadPhase = "running"
	PhaseComplete  UploadPhase = "complete"
	PhaseCancelled UploadPhase = "cancelled"
)

// RowView is one row of the progress table.
type RowView struct {
	Index  int                  `json:"index"`
	Line   int                  `json:"line"`
	Status ingest.Status        `json:"status"`
	Source ingest.FailureSource `json:"source,omitempty"`
	Error  string               `json:"error,omitempty"`
	Fields map[string]string    `json:"fields"` // display columns only
}

// UploadProgress is sent to subscribers after every row transition and
// whenever the phase changes.
type UploadProgress struct {
	UploadID string         `json:"upload_id"`
	Phase    UploadPhase    `json:"phase"`
	Attempt  int            `json:"attempt"`
	Summary  ingest.Summary `json:"summary"`
	Row      *RowView       `json:"row,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Percent returns the share of rows with a terminal status (0-100).
func (p UploadProgress) Percent() int {
	if p.Summary.TotalRows == 0 {
		return 100
	}
	return p.Summary.Processed() * 100 / p.Summary.TotalRows
}

// UploadState is the full view of one session.
type UploadState struct {
	UploadID   string         `json:"upload_id"`
	FileName   string         `json:"file_name"`
	Origin     string         `json:"origin"`
	Phase      UploadPhase    `json:"phase"`
	Attempt    int            `json:"attempt"`
	Summary    ingest.Summary `json:"summary"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Columns    []string       `json:"columns"`
	Rows       []RowView      `json:"rows"`
}

// FailedRow is a row whose last attempt failed, with its full source values.
type FailedRow struct {
	LineNumber int
	Source     ingest.FailureSource
	Reason     string
	Fields     map[string]string
}

// BatchLog is the durable record of one finished run.
type BatchLog struct {
	ID         uuid.UUID
	FileName   string
	Origin     string
	Attempt    int
	ClientIP   string
	UserAgent  string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    ingest.Summary
	Cancelled  bool
	Failures   []FailureLog
}

// FailureLog is one failed row in a BatchLog.
type FailureLog struct {
	LineNumber int
	Source     ingest.FailureSource
	Message    string
}

// HistoryStore keeps the batch history.
type HistoryStore interface {
	RecordBatch(ctx context.Context, log BatchLog) error
}

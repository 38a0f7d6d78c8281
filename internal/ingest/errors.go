package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural marks errors that reject a whole file before any row is processed.
	ErrStructural = errors.New("invalid csv")

	// ErrUnsupportedFormat is returned for uploads that are neither delimited text nor xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrCancelled is returned by Run when the batch was abandoned part-way.
	ErrCancelled = errors.New("upload cancelled")

	// ErrNothingToRetry is returned by Resubmit when every row already succeeded.
	ErrNothingToRetry = errors.New("nothing to retry: every row was saved")
)

// StructuralError describes why a file could not be parsed into rows.
type StructuralError struct {
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid csv: %s: %v", e.Reason, e.Err)
	}
	return "invalid csv: " + e.Reason
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStructural) match any StructuralError.
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func structural(reason string, err error) error {
	return &StructuralError{Reason: reason, Err: err}
}

// DefaultSinkMessage is used when a sink fails without saying why.
const DefaultSinkMessage = "Failed to save record"

// SinkError is a structured failure reported by a Sink.
type SinkError struct {
	Code    string // support reference, e.g. "DB001"
	Message string // user-facing text
	Err     error  // underlying technical error
}

func (e *SinkError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// sinkMessage extracts the user-facing message from a sink failure.
func sinkMessage(err error) string {
	var se *SinkError
	if errors.As(err, &se) {
		if msg := se.Error(); msg != "" {
			return msg
		}
		return DefaultSinkMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultSinkMessage
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sink durably stores one validated row.
type Sink interface {
	Write(ctx context.Context, row RawRow) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, row RawRow) error

// Write calls f(ctx, row).
func (f SinkFunc) Write(ctx context.Context, row RawRow) error {
	return f(ctx, row)
}

// Controller validates and writes the rows of a Batch one at a time.
type Controller struct {
	validator  *Validator
	sink       Sink
	onProgress ProgressFunc
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithProgress registers the observer notified after every row transition.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Controller) { c.onProgress = fn }
}

// WithLogger sets the logger used for per-row debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller writing valid rows to sink.
func NewController(v *Validator, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		validator: v,
		sink:      sink,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every Pending row in line order and returns the final summary.
//
// The context is checked before each row. Once it is done the loop stops,
// the remaining rows stay Pending and Run returns ErrCancelled. A row already
// handed to the sink is allowed to finish.
func (c *Controller) Run(ctx context.Context, b *Batch) (Summary, error) {
	for i := 0; i < b.Len(); i++ {
		rec := b.Record(i)
		if rec.Status != StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			c.logger.Info("batch cancelled", "line", rec.Row.LineNumber, "summary", b.Summary())
			return b.Summary(), fmt.Errorf("%w at line %d: %w", ErrCancelled, rec.Row.LineNumber, err)
		}

		rec = c.process(ctx, rec)
		summary := b.set(i, rec)
		if c.onProgress != nil {
			c.onProgress(Progress{Record: copyRecord(rec), Index: i, Summary: summary})
		}
	}
	return b.Summary(), nil
}

// Resubmit retries the rows that failed on a previous run. Rows that already
// succeeded are skipped. It returns ErrNothingToRetry if there is nothing left.
func (c *Controller) Resubmit(ctx context.Context, b *Batch) (Summary, error) {
	s := b.Summary()
	if s.TotalRows > 0 && s.SuccessCount == s.TotalRows {
		return s, ErrNothingToRetry
	}
	n := b.resetFailed()
	c.logger.Debug("resubmitting failed rows", "rows", n)
	return c.Run(ctx, b)
}

// process moves one Pending record to its terminal status.
func (c *Controller) process(ctx context.Context, rec IngestRecord) IngestRecord {
	verdict := c.validator.ValidateRow(rec.Row)
	if !verdict.Valid {
		rec.Status = StatusFailed
		rec.Source = SourceValidation
		rec.Reasons = verdict.Reasons
		rec.Error = strings.Join(verdict.Reasons, "; ")
		c.logger.Debug("row rejected", "line", rec.Row.LineNumber, "reasons", rec.Error)
		return rec
	}

	if err := c.write(context.WithoutCancel(ctx), rec.Row); err != nil {
		rec.Status = StatusFailed
		rec.Source = SourceSink
		rec.Error = sinkMessage(err)
		c.logger.Warn("row write failed", "line", rec.Row.LineNumber, "error", err)
		return rec
	}

	rec.Status = StatusSuccess
	return rec
}

// write calls the sink and turns a panic into a row failure so one bad row
// cannot stop the batch.
func (c *Controller) write(ctx context.Context, row RawRow) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &SinkError{Message: DefaultSinkMessage, Err: fmt.Errorf("sink panic: %v", p)}
		}
	}()
	return c.sink.Write(ctx, row)
}

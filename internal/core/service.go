package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/logging"
)

var (
	// ErrUploadNotFound is returned for unknown or expired session IDs.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrUploadRunning is returned when a session is asked to resubmit
	// while its previous run is still going.
	ErrUploadRunning = errors.New("upload is still running")
)

// listenerBuffer is the per-subscriber channel size. Events for a slow
// subscriber are dropped; it can always fetch a fresh snapshot.
const listenerBuffer = 64

// Service owns the upload sessions. Each session wraps one ingest.Batch and
// runs its controller on a background goroutine.
type Service struct {
	validator *ingest.Validator
	sink      ingest.Sink
	history   HistoryStore
	display   []string
	limiter   *UploadLimiter
	cfg       config.UploadConfig

	mu      sync.RWMutex
	uploads map[string]*activeUpload
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithHistory records every finished run in h.
func WithHistory(h HistoryStore) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithDisplayColumns sets the row fields included in progress events.
func WithDisplayColumns(cols []string) ServiceOption {
	return func(s *Service) { s.display = cols }
}

// NewService creates a Service validating with v and writing to sink.
func NewService(v *ingest.Validator, sink ingest.Sink, cfg config.UploadConfig, opts ...ServiceOption) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	s := &Service{
		validator: v,
		sink:      sink,
		display:   v.Schema().Columns(),
		limiter:   NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:       cfg,
		uploads:   make(map[string]*activeUpload),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type activeUpload struct {
	ID        string
	FileName  string
	Origin    string
	ClientIP  string
	UserAgent string
	Batch     *ingest.Batch

	mu         sync.Mutex
	phase      UploadPhase
	err        string
	attempt    int
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	listeners  map[int]chan UploadProgress
	nextID     int
	expiry     *time.Timer
}

// StartUpload parses the file and starts processing it in the background.
// Structural problems are returned here and no session is created.
// Use SubscribeProgress or Snapshot to follow the run.
func (s *Service) StartUpload(ctx context.Context, fileName string, r io.Reader) (string, error) {
	table, err := ingest.ParseFile(fileName, r)
	if err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	upload := &activeUpload{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Origin:    GetOriginFromContext(ctx),
		ClientIP:  GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		Batch:     ingest.NewBatchFromTable(table),
		phase:     PhaseRunning,
		listeners: make(map[int]chan UploadProgress),
	}

	s.mu.Lock()
	s.uploads[upload.ID] = upload
	s.mu.Unlock()

	s.launch(ctx, upload, false)
	return upload.ID, nil
}

// Resubmit reruns the rows that failed or were left pending by a cancelled
// run. Rows that already succeeded are not sent again.
func (s *Service) Resubmit(ctx context.Context, uploadID string) error {
	upload, err := s.get(uploadID)
	if err != nil {
		return err
	}

	upload.mu.Lock()
	if upload.phase == PhaseRunning {
		upload.mu.Unlock()
		return ErrUploadRunning
	}
	if sum := upload.Batch.Summary(); sum.TotalRows > 0 && sum.SuccessCount == sum.TotalRows {
		upload.mu.Unlock()
		return ingest.ErrNothingToRetry
	}
	prev := upload.phase
	upload.phase = PhaseRunning
	upload.mu.Unlock()

	if err := s.limiter.Acquire(ctx); err != nil {
		upload.mu.Lock()
		upload.phase = prev
		upload.mu.Unlock()
		return err
	}

	s.launch(ctx, upload, true)
	return nil
}

// launch starts a run. The caller holds a limiter slot, which the run releases.
func (s *Service) launch(ctx context.Context, upload *activeUpload, resubmit bool) {
	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)

	upload.mu.Lock()
	upload.phase = PhaseRunning
	upload.err = ""
	upload.attempt++
	upload.startedAt = time.Now().UTC()
	upload.finishedAt = time.Time{}
	upload.cancel = cancel
	upload.done = make(chan struct{})
	if upload.expiry != nil {
		upload.expiry.Stop()
		upload.expiry = nil
	}
	upload.mu.Unlock()

	logger := logging.ForBatch(ctx, upload.ID, upload.FileName, upload.Origin)
	go s.run(runCtx, cancel, upload, resubmit, logger)
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, upload *activeUpload, resubmit bool, logger *slog.Logger) {
	defer s.limiter.Release()
	defer cancel()

	upload.mu.Lock()
	attempt := upload.attempt
	upload.mu.Unlock()

	logger.Info("batch started", "rows", upload.Batch.Len(), "attempt", attempt)

	ctrl := ingest.NewController(s.validator, s.sink,
		ingest.WithLogger(logger),
		ingest.WithProgress(func(p ingest.Progress) {
			row := s.rowView(p.Index, p.Record)
			upload.broadcast(UploadProgress{
				UploadID: upload.ID,
				Phase:    PhaseRunning,
				Attempt:  attempt,
				Summary:  p.Summary,
				Row:      &row,
			})
		}),
	)

	var (
		summary ingest.Summary
		err     error
	)
	if resubmit {
		summary, err = ctrl.Resubmit(ctx, upload.Batch)
	} else {
		summary, err = ctrl.Run(ctx, upload.Batch)
	}

	phase := PhaseComplete
	if err != nil {
		phase = PhaseCancelled
		logger.Info("batch stopped", "error", err, "success", summary.SuccessCount, "errors", summary.ErrorCount)
	} else {
		logger.Info("batch complete", "total", summary.TotalRows, "success", summary.SuccessCount, "errors", summary.ErrorCount)
	}

	upload.mu.Lock()
	upload.phase = phase
	upload.finishedAt = time.Now().UTC()
	if err != nil {
		upload.err = err.Error()
	}
	upload.mu.Unlock()

	s.recordHistory(upload, logger)
	upload.finish()
	s.scheduleExpiry(upload)
}

// SubscribeProgress returns a channel of progress events for the current
// run and a function to stop listening. The first event is the current state.
// The channel is closed when the run ends; for a session that is not running
// it carries the current state and is closed immediately.
func (s *Service) SubscribeProgress(uploadID string) (<-chan UploadProgress, func(), error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan UploadProgress, listenerBuffer)

	upload.mu.Lock()
	defer upload.mu.Unlock()

	ch <- upload.progressLocked()
	if upload.phase != PhaseRunning || upload.done == nil {
		close(ch)
		return ch, func() {}, nil
	}

	id := upload.nextID
	upload.nextID++
	upload.listeners[id] = ch

	unsubscribe := func() {
		upload.mu.Lock()
		defer upload.mu.Unlock()
		if l, ok := upload.listeners[id]; ok {
			delete(upload.listeners, id)
			close(l)
		}
	}
	return ch, unsubscribe, nil
}

// Snapshot returns the current state of a session, including every row.
func (s *Service) Snapshot(uploadID string) (UploadState, error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return UploadState{}, err
	}

	records := upload.Batch.Records()
	rows := make([]RowView, len(records))
	for i, rec := range records {
		rows[i] = s.rowView(i, rec)
	}

	upload.mu.Lock()
	defer upload.mu.Unlock()

	state := UploadState{
		UploadID:  upload.ID,
		FileName:  upload.FileName,
		Origin:    upload.Origin,
		Phase:     upload.phase,
		Attempt:   upload.attempt,
		Summary:   upload.Batch.Summary(),
		Error:     upload.err,
		StartedAt: upload.startedAt,
		Columns:   append([]string(nil), s.display...),
		Rows:      rows,
	}
	if !upload.finishedAt.IsZero() {
		t := upload.finishedAt
		state.FinishedAt = &t
	}
	return state, nil
}

// Wait blocks until the session's current run ends and returns its state.
func (s *Service) Wait(ctx context.Context, uploadID string) (UploadState, error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return UploadState{}, err
	}

	upload.mu.Lock()
	done := upload.done
	upload.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return UploadState{}, ctx.Err()
		}
	}
	return s.Snapshot(uploadID)
}

// FailedRows returns the header of the uploaded file and every row whose
// last attempt failed, in line order.
func (s *Service) FailedRows(uploadID string) ([]string, []FailedRow, error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return nil, nil, err
	}

	return upload.Batch.Header(), FailedRowsOf(upload.Batch), nil
}

// CancelUpload stops a running session before its next row. The row being
// written finishes; remaining rows stay pending and can be resubmitted.
// Cancelling a session that is not running does nothing.
func (s *Service) CancelUpload(uploadID string) error {
	upload, err := s.get(uploadID)
	if err != nil {
		return err
	}

	upload.mu.Lock()
	defer upload.mu.Unlock()
	if upload.phase == PhaseRunning && upload.cancel != nil {
		upload.cancel()
	}
	return nil
}

// CloseUpload cancels the session if needed and discards it.
func (s *Service) CloseUpload(uploadID string) error {
	if err := s.CancelUpload(uploadID); err != nil {
		return err
	}
	s.remove(uploadID)
	return nil
}

// CancelAll cancels every running session. Used on shutdown.
func (s *Service) CancelAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.uploads))
	for id := range s.uploads {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.CancelUpload(id)
	}
}

// WaitForUploads blocks until every running batch finishes or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// UploadLimiterStatus reports how many batches are running.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// IngestFile parses and processes a file synchronously on the caller's
// goroutine. The CLI and the drop-directory watcher use it. Cancelling ctx
// stops the batch before its next row.
func (s *Service) IngestFile(ctx context.Context, fileName string, r io.Reader, onProgress ingest.ProgressFunc) (*ingest.Batch, error) {
	table, err := ingest.ParseFile(fileName, r)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	upload := &activeUpload{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Origin:    GetOriginFromContext(ctx),
		ClientIP:  GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		Batch:     ingest.NewBatchFromTable(table),
		attempt:   1,
		startedAt: time.Now().UTC(),
	}
	logger := logging.ForBatch(ctx, upload.ID, fileName, upload.Origin)

	opts := []ingest.Option{ingest.WithLogger(logger)}
	if onProgress != nil {
		opts = append(opts, ingest.WithProgress(onProgress))
	}
	summary, runErr := ingest.NewController(s.validator, s.sink, opts...).Run(ctx, upload.Batch)

	upload.finishedAt = time.Now().UTC()
	upload.phase = PhaseComplete
	if runErr != nil {
		upload.phase = PhaseCancelled
	}
	logger.Info("file ingested", "total", summary.TotalRows, "success", summary.SuccessCount, "errors", summary.ErrorCount)
	s.recordHistory(upload, logger)

	return upload.Batch, runErr
}

func (s *Service) get(uploadID string) (*activeUpload, error) {
	s.mu.RLock()
	upload, ok := s.uploads[uploadID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	return upload, nil
}

func (s *Service) remove(uploadID string) {
	s.mu.Lock()
	upload, ok := s.uploads[uploadID]
	delete(s.uploads, uploadID)
	s.mu.Unlock()

	if ok {
		upload.mu.Lock()
		if upload.expiry != nil {
			upload.expiry.Stop()
			upload.expiry = nil
		}
		upload.mu.Unlock()
	}
}

// scheduleExpiry discards a finished session after the retention period.
func (s *Service) scheduleExpiry(upload *activeUpload) {
	if s.cfg.RetainFinished <= 0 {
		return
	}
	upload.mu.Lock()
	defer upload.mu.Unlock()
	if upload.phase == PhaseRunning {
		return
	}
	upload.expiry = time.AfterFunc(s.cfg.RetainFinished, func() {
		s.remove(upload.ID)
	})
}

func (s *Service) recordHistory(upload *activeUpload, logger *slog.Logger) {
	if s.history == nil {
		return
	}

	upload.mu.Lock()
	entry := BatchLog{
		ID:         uuid.New(),
		FileName:   upload.FileName,
		Origin:     upload.Origin,
		Attempt:    upload.attempt,
		ClientIP:   upload.ClientIP,
		UserAgent:  upload.UserAgent,
		StartedAt:  upload.startedAt,
		FinishedAt: upload.finishedAt,
		Cancelled:  upload.phase == PhaseCancelled,
	}
	upload.mu.Unlock()

	entry.Summary = upload.Batch.Summary()
	for _, rec := range upload.Batch.Failed() {
		entry.Failures = append(entry.Failures, FailureLog{
			LineNumber: rec.Row.LineNumber,
			Source:     rec.Source,
			Message:    rec.Error,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.history.RecordBatch(ctx, entry); err != nil {
		logger.Warn("failed to record batch history", "error", err)
	}
}

func (s *Service) rowView(index int, rec ingest.IngestRecord) RowView {
	fields := make(map[string]string, len(s.display))
	for _, col := range s.display {
		fields[col] = rec.Row.Get(col)
	}
	return RowView{
		Index:  index,
		Line:   rec.Row.LineNumber,
		Status: rec.Status,
		Source: rec.Source,
		Error:  rec.Error,
		Fields: fields,
	}
}

// progressLocked builds a phase event. upload.mu must be held.
func (upload *activeUpload) progressLocked() UploadProgress {
	return UploadProgress{
		UploadID: upload.ID,
		Phase:    upload.phase,
		Attempt:  upload.attempt,
		Summary:  upload.Batch.Summary(),
		Error:    upload.err,
	}
}

// broadcast sends an event to every listener without blocking.
func (upload *activeUpload) broadcast(p UploadProgress) {
	upload.mu.Lock()
	defer upload.mu.Unlock()

	for _, ch := range upload.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish sends the final phase event, closes all listeners and marks the run done.
func (upload *activeUpload) finish() {
	upload.mu.Lock()
	defer upload.mu.Unlock()

	final := upload.progressLocked()
	for id, ch := range upload.listeners {
		select {
		case ch <- final:
		default:
		}
		close(ch)
		delete(upload.listeners, id)
	}
	close(upload.done)
}

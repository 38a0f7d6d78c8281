// Package watch ingests files dropped into a directory.
//
// Each new .csv or .xlsx file is processed once it has stopped changing for
// the settle delay. Rows that fail are written to "<name> - failed.csv" in
// the same directory and the source file is moved into Uploaded/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// UploadedDir is the subdirectory processed files are moved into.
const UploadedDir = "Uploaded"

const failedSuffix = " - failed.csv"

// Ingester processes one file synchronously. core.Service satisfies it.
type Ingester interface {
	IngestFile(ctx context.Context, fileName string, r io.Reader, onProgress ingest.ProgressFunc) (*ingest.Batch, error)
}

// Result describes one processed file.
type Result struct {
	Source  string         // path the file was read from
	MovedTo string         // path under Uploaded/, empty if the file was left in place
	Report  string         // failure report path, empty if every row was saved
	Summary ingest.Summary // final counts
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithOnProcessed registers a callback run after each file.
func WithOnProcessed(fn func(Result, error)) Option {
	return func(w *Watcher) { w.onProcessed = fn }
}

// Watcher watches one directory.
type Watcher struct {
	dir         string
	settle      time.Duration
	ingester    Ingester
	logger      *slog.Logger
	onProcessed func(Result, error)

	pending map[string]time.Time // path -> last event
}

// New creates a Watcher for dir. Files are ingested once no event has been
// seen for settle.
func New(dir string, settle time.Duration, ing Ingester, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		settle:   settle,
		ingester: ing,
		logger:   slog.Default(),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("watch_dir", dir)
	return w
}

// Run watches the directory until ctx is cancelled. Files already present
// when Run starts are processed too.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory")

	existing, err := w.scan()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, path := range existing {
		w.pending[path] = now
	}

	tick := w.settle / 4
	if tick < 20*time.Millisecond {
		tick = 20 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Accepts(event.Name) {
				continue
			}
			w.pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// processSettled ingests pending files that have been quiet for the settle
// delay, oldest event first.
func (w *Watcher) processSettled(ctx context.Context) {
	cutoff := time.Now().Add(-w.settle)

	var ready []string
	for path, last := range w.pending {
		if !last.After(cutoff) {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return w.pending[ready[i]].Before(w.pending[ready[j]])
	})

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue // removed or renamed before it settled
		}

		res, err := w.ProcessFile(ctx, path)
		if err != nil {
			w.logger.Error("file not ingested", "file", filepath.Base(path), "error", err)
		}
		if w.onProcessed != nil {
			w.onProcessed(res, err)
		}
	}
}

// ProcessFile ingests one file, writes its failure report and moves it into
// Uploaded/. Files rejected as a whole and cancelled runs stay where they are.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (Result, error) {
	res := Result{Source: path}
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	ctx = core.ContextWithOrigin(ctx, core.OriginWatch)
	batch, err := w.ingester.IngestFile(ctx, name, f, nil)
	if batch != nil {
		res.Summary = batch.Summary()
	}
	if err != nil {
		return res, err
	}
	// Windows will not rename an open file.
	_ = f.Close()

	if res.Summary.ErrorCount > 0 {
		report := filepath.Join(filepath.Dir(path), core.FailedRowsFileName(name))
		if err := writeReport(report, batch); err != nil {
			return res, err
		}
		res.Report = report
	}

	dest, err := moveToUploaded(path)
	if err != nil {
		return res, err
	}
	res.MovedTo = dest

	w.logger.Info("file processed",
		"file", name,
		"total", res.Summary.TotalRows,
		"success", res.Summary.SuccessCount,
		"errors", res.Summary.ErrorCount,
	)
	return res, nil
}

// Accepts reports whether path names a file the watcher ingests.
func Accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	if strings.HasSuffix(name, failedSuffix) {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read watch directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && Accepts(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return paths, nil
}

func writeReport(path string, batch *ingest.Batch) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failure report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close failure report: %w", cerr)
		}
	}()
	return core.WriteFailedRows(f, batch.Header(), core.FailedRowsOf(batch))
}

// moveToUploaded moves path into the Uploaded directory beside it. A file
// with the same name already there gets a timestamp suffix.
func moveToUploaded(path string) (string, error) {
	dir := filepath.Join(filepath.Dir(path), UploadedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s directory: %w", UploadedDir, err)
	}

	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		stamp := time.Now().UTC().Format("20060102-150405.000")
		dest = filepath.Join(dir, fmt.Sprintf("%s %s%s", strings.TrimSuffix(name, ext), stamp, ext))
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("check %s: %w", dest, err)
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move %s: %w", name, err)
	}
	return dest, nil
}

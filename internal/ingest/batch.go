package ingest

import (
	"sort"
	"sync"
)

// Batch is the set of rows from one uploaded file.
//
// Only the Controller changes record state. Readers get copies, so a UI can
// poll Records or Summary while a run is in progress.
type Batch struct {
	mu      sync.RWMutex
	header  []string
	records []IngestRecord
	summary Summary
}

// NewBatch creates one Pending record per row, ordered by line number.
func NewBatch(rows []RawRow) *Batch {
	sorted := make([]RawRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LineNumber < sorted[j].LineNumber
	})

	records := make([]IngestRecord, len(sorted))
	for i, row := range sorted {
		records[i] = IngestRecord{Row: row, Status: StatusPending}
	}
	return &Batch{
		records: records,
		summary: Summary{TotalRows: len(records)},
	}
}

// NewBatchFromTable creates a batch from parser output and keeps its header.
func NewBatchFromTable(t *Table) *Batch {
	b := NewBatch(t.Rows)
	b.header = append([]string(nil), t.Header...)
	return b
}

// Header returns the source file's column names, if known.
func (b *Batch) Header() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.header...)
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Summary returns the current aggregate counts.
func (b *Batch) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.summary
}

// Record returns a copy of the record at index i.
func (b *Batch) Record(i int) IngestRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyRecord(b.records[i])
}

// Records returns a copy of every record in line order.
func (b *Batch) Records() []IngestRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]IngestRecord, len(b.records))
	for i, rec := range b.records {
		out[i] = copyRecord(rec)
	}
	return out
}

// Failed returns copies of the records whose last attempt failed.
func (b *Batch) Failed() []IngestRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []IngestRecord
	for _, rec := range b.records {
		if rec.Status == StatusFailed {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

// Done reports whether no row is still Pending.
func (b *Batch) Done() bool {
	return b.Summary().Complete()
}

// set stores a record and recomputes the summary.
func (b *Batch) set(i int, rec IngestRecord) Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[i] = rec
	b.summary = b.recount()
	return b.summary
}

// resetFailed moves every Failed record back to Pending for a retry and
// returns how many were reset.
func (b *Batch) resetFailed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i, rec := range b.records {
		if rec.Status != StatusFailed {
			continue
		}
		b.records[i] = IngestRecord{Row: rec.Row, Status: StatusPending}
		n++
	}
	b.summary = b.recount()
	return n
}

func (b *Batch) recount() Summary {
	s := Summary{TotalRows: len(b.records)}
	for _, rec := range b.records {
		switch rec.Status {
		case StatusSuccess:
			s.SuccessCount++
		case StatusFailed:
			s.ErrorCount++
		}
	}
	return s
}

func copyRecord(rec IngestRecord) IngestRecord {
	rec.Reasons = append([]string(nil), rec.Reasons...)
	return rec
}

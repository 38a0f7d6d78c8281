// Package core runs gem inventory uploads as sessions.
//
// The ingest package does the row work: parsing, validation and the
// sequential controller. This package wraps it for the outer surfaces
// (HTTP handlers, the CLI and the drop-directory watcher) and owns
// everything that outlives a single call: the session table, the
// concurrency limit, progress fan-out and the batch history.
//
// # Upload Flow
//
//  1. A surface calls [Service.StartUpload] with the file. Structural
//     problems (empty file, header only, duplicate columns) are returned
//     immediately and no session is created.
//  2. The session takes a slot from the [UploadLimiter] and runs the
//     controller on its own goroutine.
//  3. Every row transition is broadcast to subscribers of
//     [Service.SubscribeProgress]. A slow subscriber misses events rather
//     than stalling the batch; [Service.Snapshot] always has the full table.
//  4. When the run ends the session is written to the [HistoryStore] and
//     kept for the configured retention period.
//
// [Service.CancelUpload] stops a run before its next row. The rows left
// pending, and any that failed, go through again on [Service.Resubmit].
// Rows that were saved are never sent twice.
//
// [Service.IngestFile] is the synchronous form used by the CLI and watcher.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB008: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL003: Row validation errors
//   - FILE001-FILE007: File errors (size, structure, format)
//   - UPL001-UPL007: Upload session errors (cancelled, timeout, not found)
//   - RATE001: Rate limiting
//
// Stores pass their errors through [ToSinkError] so a failed row carries a
// code and a message that is safe to show.
package core

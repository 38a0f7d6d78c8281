package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/logging"
)

// uploadResponse is returned when a batch starts or restarts.
type uploadResponse struct {
	UploadID    string           `json:"upload_id"`
	Phase       core.UploadPhase `json:"phase"`
	Summary     ingest.Summary   `json:"summary"`
	StatusURL   string           `json:"status_url"`
	ProgressURL string           `json:"progress_url"`
}

func newUploadResponse(state core.UploadState) uploadResponse {
	return uploadResponse{
		UploadID:    state.UploadID,
		Phase:       state.Phase,
		Summary:     state.Summary,
		StatusURL:   "/api/uploads/" + state.UploadID,
		ProgressURL: "/api/uploads/" + state.UploadID + "/progress",
	}
}

// handleUpload accepts a multipart file and starts processing it.
// Structural problems are reported here; row problems show up in progress.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	uploadID, err := s.service.StartUpload(ctx, header.Filename, file)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	state, err := s.service.Snapshot(uploadID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/uploads/"+uploadID)
	writeJSON(w, http.StatusAccepted, newUploadResponse(state))
}

// handleUploadState returns the session state with every row.
func (s *Server) handleUploadState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Snapshot(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleUploadProgress streams progress as Server-Sent Events.
//
// The first event is the current state. Each row event carries the number
// of finished rows as its ID, so a client reconnecting with Last-Event-ID
// skips rows it has already seen. The stream ends with a "complete" event
// holding the final state.
func (s *Server) handleUploadProgress(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	lastEventID, _ := parseEventID(r.Header.Get("Last-Event-ID"))

	events, unsubscribe, err := s.service.SubscribeProgress(uploadID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	defer unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, id string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if id != "" {
			fmt.Fprintf(w, "id: %s\n", id)
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		return rc.Flush() == nil
	}

	for {
		select {
		case p, ok := <-events:
			if !ok {
				state, err := s.service.Snapshot(uploadID)
				if err != nil {
					return
				}
				send("complete", "", newUploadResponse(state))
				return
			}

			if p.Row == nil {
				if !send("state", "", p) {
					return
				}
				continue
			}
			id := eventID{attempt: p.Attempt, processed: p.Summary.Processed()}
			if !id.after(lastEventID) {
				continue
			}
			if !send("progress", id.String(), p) {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// eventID identifies a progress event. A resubmit restarts the processed
// count, so ids order by attempt first.
type eventID struct {
	attempt   int
	processed int
}

func (e eventID) String() string {
	return strconv.Itoa(e.attempt) + "." + strconv.Itoa(e.processed)
}

func (e eventID) after(o eventID) bool {
	if e.attempt != o.attempt {
		return e.attempt > o.attempt
	}
	return e.processed > o.processed
}

// parseEventID reads a Last-Event-ID header. Anything malformed is treated
// as no id, which replays every event.
func parseEventID(s string) (eventID, bool) {
	a, p, ok := strings.Cut(s, ".")
	if !ok {
		return eventID{}, false
	}
	attempt, err1 := strconv.Atoi(a)
	processed, err2 := strconv.Atoi(p)
	if err1 != nil || err2 != nil {
		return eventID{}, false
	}
	return eventID{attempt: attempt, processed: processed}, true
}

// handleResubmit reruns the failed and pending rows of a finished session.
func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Resubmit(ctx, uploadID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	state, err := s.service.Snapshot(uploadID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newUploadResponse(state))
}

// handleCancelUpload asks a running session to stop before its next row.
func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelUpload(chi.URLParam(r, "uploadID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleCloseUpload discards a session, cancelling it first if it is running.
func (s *Server) handleCloseUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseUpload(chi.URLParam(r, "uploadID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportFailedRows downloads the rows whose last attempt failed as CSV.
func (s *Server) handleExportFailedRows(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	state, err := s.service.Snapshot(uploadID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	header, rows, err := s.service.FailedRows(uploadID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%q`, core.FailedRowsFileName(state.FileName)))
	if err := core.WriteFailedRows(w, header, rows); err != nil {
		logging.FromContext(r.Context()).Error("failed rows export", "upload_id", uploadID, "error", err)
	}
}

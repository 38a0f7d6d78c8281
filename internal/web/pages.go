package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gemstock/internal/web/templates"
)

// handleUploadPage renders the progress table for one session.
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Snapshot(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.UploadPage(state).Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

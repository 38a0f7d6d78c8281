package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// handleDownloadTemplate serves the upload template: the header row plus one
// example row. ?format=xlsx returns a workbook, anything else CSV.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "csv":
		data, err := ingest.Template(s.schema, s.example)
		if err != nil {
			respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="gem_inventory_template.csv"`)
		_, _ = w.Write(data)

	case "xlsx":
		data, err := ingest.TemplateXLSX(s.schema, s.example)
		if err != nil {
			respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="gem_inventory_template.xlsx"`)
		_, _ = w.Write(data)

	default:
		respondError(w, r, fmt.Errorf("%w: template format %q", ingest.ErrUnsupportedFormat, format), http.StatusBadRequest)
	}
}

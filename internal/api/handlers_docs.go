package api

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/esgcompare/internal/export"
	"github.com/dgallion1/esgcompare/internal/metric"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// handleDocumentMetrics returns the cached normalized metric set of one
// document by content fingerprint. It never triggers an extraction.
func (s *Server) handleDocumentMetrics(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	if !fingerprintPattern.MatchString(fp) {
		jsonError(w, "fingerprint must be 64 lowercase hex characters", http.StatusBadRequest)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, ok, err := s.orchestrator.Pipeline().Lookup(r.Context(), metric.Fingerprint(fp))
	if err != nil {
		s.log.Error("cache lookup", "fingerprint", fp[:12], "error", err)
		jsonError(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		jsonError(w, "no cached metrics for fingerprint", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := export.Set(&buf, set, format); err != nil {
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format != export.JSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="metrics-%s%s"`, fp[:12], format.Ext()))
	}
	w.Write(buf.Bytes())
}

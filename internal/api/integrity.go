package api

import (
	"net/http"
	"strings"
)

func handleIntegrity(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Integrity == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INTEGRITY_NOT_CONFIGURED", "integrity checks are not configured", false, nil)
		return
	}
	collection := strings.TrimSpace(r.URL.Query().Get("collection"))
	summary, err := deps.Integrity.CheckIntegrity(r.Context(), collection)
	if err != nil {
		writeDomainError(r.Context(), w, err, map[string]any{"collection": collection})
		return
	}
	status := http.StatusOK
	if !summary.Healthy() {
		status = http.StatusConflict
	}
	writeJSON(w, status, summary)
}

package api

import (
	"net/http"
	"strings"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/describe"
)

func handleGenerateDescription(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.DescriptionWriter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DESCRIBE_NOT_CONFIGURED", "description generation is not configured", false, nil)
		return
	}

	var req describe.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid description request body", false, map[string]any{"details": err.Error()})
		return
	}
	description, err := deps.DescriptionWriter.Generate(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err, map[string]any{"collection": req.Collection})
		return
	}
	writeJSON(w, http.StatusOK, description)
}

func handleGetDescription(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.DescriptionReader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DESCRIBE_NOT_CONFIGURED", "description store is not configured", false, nil)
		return
	}
	collection := strings.TrimSpace(r.PathValue("collection"))
	if err := dataset.ValidateCollectionName(collection); err != nil {
		writeDomainError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.DescriptionReader.Load(r.Context(), collection))
}

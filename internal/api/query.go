package api

import (
	"net/http"
	"strings"

	"github.com/datainsight/datainsight/internal/nl2sql"
)

func handleTranslateQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryTranslator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	translation, err := deps.QueryTranslator.Translate(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err, nil)
		return
	}
	translation.Query = nl2sql.Sanitize(translation.Query)
	writeJSON(w, http.StatusOK, translation)
}

// handleAsk answers with 200 both when the query ran and when it failed at
// execution; the latter carries the attempted query and an error field.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Insight == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	answer, err := deps.Insight.Ask(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (nl2sql.Request, bool) {
	var req nl2sql.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return nl2sql.Request{}, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return nl2sql.Request{}, false
	}
	return req, true
}

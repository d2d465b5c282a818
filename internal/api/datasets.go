package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/datainsight/datainsight/internal/config"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/ingest"
	"github.com/datainsight/datainsight/internal/storage"
)

const uploadFilenameMetadata = "filename"

// handleUploadDataset streams the multipart "file" part into object storage
// and ingests it from there. The staged object is removed once the run ends.
func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Uploads == nil || deps.Ingestor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INGEST_NOT_CONFIGURED", "ingest dependencies are not configured", false, nil)
		return
	}

	appendRunID := cfg.Ingest.AppendRunID
	if raw := strings.TrimSpace(r.URL.Query().Get("run_id")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_RUN_ID", "run_id must be a boolean", false, nil)
			return
		}
		appendRunID = parsed
	}

	if cfg.Ingest.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Ingest.MaxUploadBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "MULTIPART_REQUIRED", "request must be multipart/form-data", false, map[string]any{"details": err.Error()})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
			return
		}
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to read multipart body", false, map[string]any{"details": err.Error()})
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		filename := filepath.Base(strings.TrimSpace(part.FileName()))
		if !strings.EqualFold(filepath.Ext(filename), ".csv") {
			_ = part.Close()
			writeError(r.Context(), w, http.StatusBadRequest, "CSV_REQUIRED", "only .csv files are accepted", false, map[string]any{"filename": filename})
			return
		}
		runID := ""
		if appendRunID {
			runID = newID(deps)
		}
		datasetName, err := dataset.DatasetName(filename, runID)
		if err != nil {
			_ = part.Close()
			writeDomainError(r.Context(), w, err, nil)
			return
		}

		key, err := storage.StagedUploadPath(cfg.Ingest.UploadPrefix, newID(deps))
		if err != nil {
			_ = part.Close()
			writeError(r.Context(), w, http.StatusInternalServerError, "STAGING_FAILED", err.Error(), false, nil)
			return
		}
		_, err = deps.Uploads.Put(r.Context(), key, part, -1, storage.PutOptions{
			ContentType: storage.ContentTypeCSV,
			Metadata:    map[string]string{uploadFilenameMetadata: filename},
		})
		_ = part.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), false, nil)
				return
			}
			writeError(r.Context(), w, http.StatusInternalServerError, "STAGING_FAILED", "failed to stage upload", true, map[string]any{"details": err.Error()})
			return
		}

		result, err := deps.Ingestor.Ingest(r.Context(), ingest.ObjectSource{
			Store:    deps.Uploads,
			Key:      key,
			Filename: filename,
		}, datasetName)
		if err != nil {
			writeDomainError(r.Context(), w, err, map[string]any{"dataset_name": datasetName})
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}
}

func handleListCollections(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Collections == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	collections, err := deps.Collections.ListCollections(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list collections", true, map[string]any{"details": err.Error()})
		return
	}

	items := make([]map[string]any, 0, len(collections))
	for _, collection := range collections {
		items = append(items, map[string]any{
			"name":         collection.Name,
			"row_count":    collection.RowCount,
			"object_count": collection.ObjectCount,
			"created_at":   collection.CreatedAt,
			"updated_at":   collection.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": items})
}

func newID(deps Dependencies) string {
	if deps.NewID != nil {
		return deps.NewID()
	}
	return uuid.NewString()
}

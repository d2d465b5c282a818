package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datainsight/datainsight/internal/catalog"
	"github.com/datainsight/datainsight/internal/config"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/describe"
	"github.com/datainsight/datainsight/internal/ingest"
	"github.com/datainsight/datainsight/internal/insight"
	"github.com/datainsight/datainsight/internal/maintenance"
	"github.com/datainsight/datainsight/internal/nl2sql"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

type CollectionLister interface {
	ListCollections(ctx context.Context) ([]catalog.Collection, error)
}

type DatasetIngestor interface {
	Ingest(ctx context.Context, source ingest.Source, datasetName string) (ingest.Result, error)
}

type DescriptionGenerator interface {
	Generate(ctx context.Context, req describe.Request) (describe.Description, error)
}

type DescriptionReader interface {
	Load(ctx context.Context, collection string) describe.Description
}

type QueryTranslator interface {
	Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Translation, error)
}

type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, collection string) (maintenance.IntegritySummary, error)
}

type QueryAsker interface {
	Ask(ctx context.Context, req nl2sql.Request) (insight.Answer, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Collections       CollectionLister
	Uploads           storage.ObjectStore
	Ingestor          DatasetIngestor
	DescriptionWriter DescriptionGenerator
	DescriptionReader DescriptionReader
	QueryTranslator   QueryTranslator
	Insight           QueryAsker
	Integrity         IntegrityChecker
	NewID             func() string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]http.HandlerFunc{
		"POST /v1/datasets": func(w http.ResponseWriter, r *http.Request) {
			handleUploadDataset(cfg, deps, w, r)
		},
		"GET /v1/collections": func(w http.ResponseWriter, r *http.Request) {
			handleListCollections(deps, w, r)
		},
		"POST /v1/descriptions": func(w http.ResponseWriter, r *http.Request) {
			handleGenerateDescription(deps, w, r)
		},
		"GET /v1/descriptions/{collection}": func(w http.ResponseWriter, r *http.Request) {
			handleGetDescription(deps, w, r)
		},
		"POST /v1/query/translate": func(w http.ResponseWriter, r *http.Request) {
			handleTranslateQuery(deps, w, r)
		},
		"POST /v1/query": func(w http.ResponseWriter, r *http.Request) {
			handleAsk(deps, w, r)
		},
		"GET /v1/integrity": func(w http.ResponseWriter, r *http.Request) {
			handleIntegrity(deps, w, r)
		},
	}

	protect := func(h http.Handler) http.Handler { return h }
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protect = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
				})
			}
		} else {
			protect = deps.AuthMiddleware
		}
	}
	for pattern, handler := range routes {
		mux.Handle(pattern, protect(handler))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeDomainError maps the dataset error taxonomy onto HTTP responses.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	var abort *ingest.AbortError
	if errors.As(err, &abort) {
		if extra == nil {
			extra = map[string]any{}
		}
		extra["imported_rows"] = abort.Imported
	}

	switch {
	case errors.Is(err, dataset.ErrValidation):
		writeError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), false, extra)
	case errors.Is(err, dataset.ErrConflict):
		writeError(ctx, w, http.StatusConflict, "DATASET_EXISTS", err.Error(), false, extra)
	case errors.Is(err, dataset.ErrInference):
		writeError(ctx, w, http.StatusBadGateway, "INFERENCE_FAILED", err.Error(), true, extra)
	case errors.Is(err, dataset.ErrTranslation):
		writeError(ctx, w, http.StatusBadGateway, "TRANSLATION_FAILED", err.Error(), true, extra)
	case errors.Is(err, dataset.ErrIO):
		writeError(ctx, w, http.StatusInternalServerError, "SOURCE_READ_FAILED", err.Error(), true, extra)
	case errors.Is(err, dataset.ErrExecution):
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", err.Error(), false, extra)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), true, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "STORE_ERROR", err.Error(), true, extra)
	}
}

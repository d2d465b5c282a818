package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/datainsight/datainsight/internal/observability"
)

const PasscodeHeader = "X-Passcode"

func Middleware(logger *slog.Logger, validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passcode := extractPasscode(r)
			if passcode == "" {
				writeUnauthorized(w, r, "missing passcode")
				return
			}
			if !validator.Validate(r.Context(), passcode) {
				if logger != nil {
					logger.WarnContext(r.Context(), "authentication failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
					)
				}
				writeUnauthorized(w, r, "invalid passcode")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractPasscode(r *http.Request) string {
	if passcode := strings.TrimSpace(r.Header.Get(PasscodeHeader)); passcode != "" {
		return passcode
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}

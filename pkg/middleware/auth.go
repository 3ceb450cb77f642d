package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/repositories"
)

// APIKeyHeader carries the credential on every authenticated request.
const APIKeyHeader = "X-API-Key"

// contextKey avoids collisions with other packages' context values.
type contextKey string

// apiKeyContextKey holds the validated API key for downstream handlers.
const apiKeyContextKey contextKey = "api_key"

func contextWithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// APIKeyFromRequest returns the validated API key stored by APIKeyAuth,
// or "" on unauthenticated routes.
func APIKeyFromRequest(r *http.Request) string {
	key, _ := r.Context().Value(apiKeyContextKey).(string)
	return key
}

// APIKeyAuth validates the X-API-Key header against the key store. A
// missing or unknown key gets a 401 without reaching the handler.
func APIKeyAuth(apiKeys repositories.APIKeyRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeDetail(w, http.StatusUnauthorized, "Invalid or missing API Key")
				return
			}

			if err := apiKeys.Validate(r.Context(), key); err != nil {
				logger.Warn("rejected request with invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				writeDetail(w, http.StatusUnauthorized, "Invalid or missing API Key")
				return
			}

			ctx := contextWithAPIKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeDetail writes an error payload in the {"detail": ...} shape the
// API uses everywhere.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

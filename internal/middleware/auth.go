package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

type contextKey string

const (
	OwnerKey  contextKey = "owner"
	APIKeyKey contextKey = "api_key"
)

// OwnerResolver maps an API key to its owner.
type OwnerResolver interface {
	OwnerByAPIKey(ctx context.Context, key string) (*projects.Owner, error)
}

// publicPaths skip authentication.
var publicPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// APIKeyAuth resolves "Authorization: Bearer <key>" to an owner. WebSocket
// clients that cannot set headers may pass ?api_key= instead.
func APIKeyAuth(resolver OwnerResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := bearer(r.Header.Get("Authorization"))
			if apiKey == "" {
				apiKey = strings.TrimSpace(r.URL.Query().Get("api_key"))
			}
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			owner, err := resolver.OwnerByAPIKey(r.Context(), apiKey)
			if errors.Is(err, scans.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			if err != nil {
				logger.Error("resolve api key", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := WithOwner(r.Context(), owner.ID)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Support both "Bearer <key>" and "<key>" formats
func bearer(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		h = h[7:]
	}
	return strings.TrimSpace(h)
}

// WithOwner stores the authenticated owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerKey, ownerID)
}

// GetOwnerFromContext extracts the owner id set by APIKeyAuth
func GetOwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(OwnerKey).(string); ok {
		return owner
	}
	return ""
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

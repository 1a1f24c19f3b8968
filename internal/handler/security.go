package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader carries the staff API key. The legacy "api_key" header and a
// Bearer token are accepted too.
const APIKeyHeader = "X-API-Key"

func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if k := r.Header.Get("api_key"); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireScope rejects requests whose API key does not grant scope.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := h.auth.Authenticate(r.Context(), apiKeyFrom(r), scope)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key", key.ID))
		next(w, r.WithContext(ctx))
	}
}

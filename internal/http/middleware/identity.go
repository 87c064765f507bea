package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const userIDHeader = "X-User-Id"

const userIDContextKey contextKey = "user_id"

// Identity resolves the opaque user identity from the X-User-Id header for
// every /v1/ request. Anything beyond "a valid UUID was presented" is out of
// scope here.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				writeUnauthorized(w, r)
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				writeUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user id, or "" outside /v1/ routes.
func GetUserID(ctx context.Context) string {
	value, _ := ctx.Value(userIDContextKey).(string)
	return value
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"user not provided"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}

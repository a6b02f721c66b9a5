// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
)

type userIDKey struct{}

// UserIDFromContext returns the user authenticated by requireSession.
func UserIDFromContext(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(userIDKey{}).(ulid.ULID)
	return id, ok
}

// logRequest logs one line per request. Query strings are dropped since
// they carry confirmation tokens.
func logRequest(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// requireSession rejects requests without a valid bearer session token and
// stores the authenticated user ID in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="neighborly"`)
			respondError(w, http.StatusUnauthorized, errorIDFor(http.StatusUnauthorized))
			return
		}

		userID, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.logger.DebugContext(r.Context(), "session rejected", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="neighborly", error="invalid_token"`)
			respondError(w, http.StatusUnauthorized, errorIDFor(http.StatusUnauthorized))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

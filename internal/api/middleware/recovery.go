// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/ManuGH/nestctl/internal/log"
)

// Recoverer turns a panic in any downstream handler into a logged 500 JSON
// response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)

			reqID := log.RequestIDFromContext(r.Context())
			path := r.URL.Path
			if !utf8.ValidString(path) {
				path = strings.ToValidUTF8(path, "")
			}

			logger := log.WithComponentFromContext(r.Context(), "panic-recovery")
			logger.Error().
				Str("event", "panic.recovered").
				Str("method", r.Method).
				Str("path", path).
				Str("remote_addr", r.RemoteAddr).
				Interface("panic_value", rec).
				Str("stack_trace", string(buf[:n])).
				Msg("panic recovered in HTTP handler")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":     "internal_error",
				"requestId": reqID,
				"detail":    "An unexpected error occurred.",
			})
		}()

		next.ServeHTTP(w, r)
	})
}

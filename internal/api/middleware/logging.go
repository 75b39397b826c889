// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/log"
)

// Logging writes one access log line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		ev := logger.Info()
		switch {
		case sw.status >= 500:
			ev = logger.Error()
		case sw.status >= 400:
			ev = logger.Warn()
		case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
			ev = logger.Debug()
		}
		ev.Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", routePattern(r)).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request completed")
	})
}

// Package middleware holds the HTTP middleware shared by every route:
// request logging and per-IP rate limiting.
//
// MIDDLEWARE SHAPE:
//
//	func(next http.Handler) http.Handler
//
// Each one wraps the next handler, doing work before and/or after
// next.ServeHTTP. chi's router.Use takes exactly this type.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder remembers what the handler wrote, which http.ResponseWriter
// does not expose afterwards.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the real writer, so the
// leaderboard stream can Flush and lift its write deadline through here.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs one line per finished request: method, path, status, bytes,
// duration, client IP, chi's request ID and, when the request is traced, the
// trace ID so a slow leaderboard call can be found in the trace backend.
//
// Event-stream requests also log when they open, since their completion line
// only appears when the subscriber leaves. 5xx responses log at Error.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("ip", r.RemoteAddr),
				slog.String("request_id", chimiddleware.GetReqID(ctx)),
			}
			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
			}

			stream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
			if stream {
				logger.LogAttrs(ctx, slog.LevelInfo, "stream opened", attrs...)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			msg := "request completed"
			if stream {
				msg = "stream closed"
			}
			logger.LogAttrs(ctx, level, msg, append(attrs,
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
			)...)
		})
	}
}

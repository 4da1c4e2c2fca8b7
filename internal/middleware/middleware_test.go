package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestLogger_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	out := buf.String()
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/pot")
	assert.Contains(t, out, "bytes=15")
}

func TestLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestLogger_FlushReachesUnderlyingWriter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	rec := httptest.NewRecorder()

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: 1\n\n"))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.True(t, rec.Flushed)
}

func TestLogger_TraceAndStream(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(": ping\n\n"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `msg="stream opened"`)
	assert.Contains(t, lines[1], `msg="stream closed"`)
	assert.Contains(t, lines[1], "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestRateLimit(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	h := RateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001"), "burst of two")
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"), "bucket empty; port doesn't matter")
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000"), "other IPs have their own bucket")
}

func TestRateLimit_ResponseShape(t *testing.T) {
	l := NewIPRateLimiter(0, 0)
	h := RateLimit(l)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.True(t, strings.Contains(rec.Body.String(), "rate_limited"))
}

func TestIPRateLimiter_PrunesIdleEntries(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := range cleanupThreshold + 1 {
		l.Limiter("10.0.0." + string(rune('a'+i%26)) + string(rune('a'+i/26)))
	}
	require.Equal(t, cleanupThreshold+1, l.size())

	now = now.Add(maxIdleAge + time.Minute)
	l.Limiter("fresh")
	assert.Equal(t, 1, l.size(), "only the fresh entry survives")
}

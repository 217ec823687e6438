package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	flog "finboard/internal/log"
)

// requestMetrics tracks request counters exposed on /metrics.
type requestMetrics struct {
	total        int64
	clientErrors int64
	serverErrors int64
	lastMicros   int64
}

func (m *requestMetrics) observe(status int, d time.Duration) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status >= 500:
		atomic.AddInt64(&m.serverErrors, 1)
	case status >= 400:
		atomic.AddInt64(&m.clientErrors, 1)
	}
	atomic.StoreInt64(&m.lastMicros, d.Microseconds())
}

// headers applied to every response. The API serves JSON only, so the
// policy forbids everything a browser could load from it.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
}

// withRequestContext assigns a request id, attaches a request scoped logger
// and logs start and completion of every request.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		logger := s.logger.With(
			flog.FieldRequestID, requestID,
			flog.FieldMethod, r.Method,
			flog.FieldPath, r.URL.Path,
		)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = flog.IntoContext(ctx, logger)
		r = r.WithContext(ctx)

		logger.DebugContext(ctx, "HTTP request started",
			flog.FieldQuery, r.URL.RawQuery,
			flog.FieldClientIP, clientIP,
			flog.FieldUserAgent, r.Header.Get("User-Agent"))

		if detectSuspiciousRequest(r, &s.security) {
			logger.WarnContext(ctx, "Suspicious request",
				flog.FieldClientIP, clientIP,
				flog.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		w.Header().Set("X-Request-ID", requestID)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.requests.observe(rw.statusCode, duration)

		level := slog.LevelInfo
		if rw.statusCode >= 500 {
			level = slog.LevelError
		} else if rw.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "HTTP request completed",
			flog.FieldStatusCode, rw.statusCode,
			flog.FieldDuration, duration.Milliseconds(),
			flog.FieldClientIP, clientIP)
	})
}

// withSecurityHeaders sets the fixed response headers.
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for name, value := range securityHeaders {
			h.Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit limits POST requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(s.rateLimiter.window.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := extractClientIP(r)
		if !s.rateLimiter.allow(clientIP, &s.security) {
			flog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				flog.FieldClientIP, clientIP)
			TooManyRequestsError(retryAfter).Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func loadInt(p *int64) int64 { return atomic.LoadInt64(p) }

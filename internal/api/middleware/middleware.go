// Package middleware provides HTTP middleware for the portsweep API server:
// request ids, logging, metrics, authentication, rate limiting and panic recovery.
package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/anstrom/portsweep/internal/auth"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
)

// ContextKey represents a context key type.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// APIKeyHeader carries the API key.
	APIKeyHeader = "X-API-Key"

	maxRequestIDLength = 64
)

// writeJSONError writes the shared error body used by middleware rejections.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      http.StatusText(status),
		"message":    message,
		"request_id": GetRequestID(r),
		"timestamp":  time.Now().UTC(),
	})
}

// RequestID assigns every request an id, reusing a sane incoming X-Request-ID.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
		})
	}
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

// RequestIDFromContext extracts the request ID from ctx.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// Logging logs each completed request.
func Logging(logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := []any{
				"request_id", GetRequestID(r),
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", wrapped.statusCode,
				"response_size", wrapped.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", ClientIP(r),
			}
			if wrapped.statusCode >= http.StatusInternalServerError {
				logger.Error("HTTP request failed", fields...)
				return
			}
			logger.Info("HTTP request completed", fields...)
		})
	}
}

// Metrics records request counts and durations, labeled by route template.
func Metrics(m *metrics.PrometheusMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			path := routeTemplate(r)
			m.IncrementHTTPRequests(r.Method, path, strconv.Itoa(wrapped.statusCode))
			m.RecordHTTPDuration(r.Method, path, time.Since(start))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// recoveryLogger adapts Logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.logger.Error("HTTP handler panic recovered", "panic", fmt.Sprint(args...))
}

// Recovery turns handler panics into 500 responses.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger.WithComponent("http")}),
		handlers.PrintRecoveryStack(false),
	)
}

// APIKeyAuth requires a key matching one of the bcrypt hashes. Keys are read
// from X-API-Key, an Authorization bearer token, or the api_key query
// parameter (for websocket clients). Paths in public skip authentication.
func APIKeyAuth(hashes []string, public []string, logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("auth")
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				logger.Warn("API request without authentication",
					"request_id", GetRequestID(r),
					"path", r.URL.Path,
					"remote_addr", ClientIP(r))
				writeJSONError(w, r, http.StatusUnauthorized,
					"provide an API key in X-API-Key or Authorization: Bearer <key>")
				return
			}

			if !auth.MatchesAny(hashes, key) {
				logger.Warn("API request with invalid key",
					"request_id", GetRequestID(r),
					"key", auth.DisplayPrefix(key),
					"path", r.URL.Path,
					"remote_addr", ClientIP(r))
				writeJSONError(w, r, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("api_key")
}

// ClientLimiter keeps a token bucket per client address.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows rps requests per second per client with the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
	}
}

// Allow reports whether a request from client may proceed now.
func (cl *ClientLimiter) Allow(client string) bool {
	cl.mu.Lock()
	bucket, ok := cl.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[client] = bucket
	}
	bucket.lastSeen = time.Now()
	cl.mu.Unlock()

	return bucket.limiter.Allow()
}

// Cleanup forgets clients idle for longer than idle.
func (cl *ClientLimiter) Cleanup(idle time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for client, bucket := range cl.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(cl.clients, client)
		}
	}
}

// Clients returns the number of tracked clients.
func (cl *ClientLimiter) Clients() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// RateLimit rejects requests from clients that exceed limiter with 429.
func RateLimit(limiter *ClientLimiter, logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			if !limiter.Allow(client) {
				logger.Warn("Rate limit exceeded",
					"request_id", GetRequestID(r),
					"client_ip", client,
					"path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentType rejects POST bodies that are not JSON.
func ContentType() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				ct := r.Header.Get("Content-Type")
				if ct != "" && !strings.HasPrefix(ct, "application/json") {
					writeJSONError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize caps request bodies at limit bytes.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds common security headers.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code and size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack supports websocket upgrades through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.wroteHeader = true
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

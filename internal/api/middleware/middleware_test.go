package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seen, 36)
	})

	t.Run("unknown outside the middleware", func(t *testing.T) {
		assert.Equal(t, "unknown", GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil)))
	})
}

func TestLogging(t *testing.T) {
	var buf strings.Builder
	logger := logging.NewWithWriter(logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON}, &buf)

	handler := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
	assert.Equal(t, "HTTP request completed", entry["msg"])
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "/api/v1/scans", entry["path"])
	assert.InDelta(t, http.StatusTeapot, entry["status_code"], 0)
	assert.InDelta(t, len("short and stout"), entry["response_size"], 0)
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	m := metrics.NewPrometheusMetrics()

	router := mux.NewRouter()
	router.Use(Metrics(m))
	router.Handle("/scans/{id}", okHandler()).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scans/"+id, nil))
	}

	families, err := m.GetRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() != "portsweep_api_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] == "/scans/{id}" && labels["status"] == "200" {
				found = true
				assert.InDelta(t, 3, metric.GetCounter().GetValue(), 0)
			}
		}
	}
	assert.True(t, found, "request counter with route template label")
}

func TestMetrics_NilRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	Metrics(nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(logging.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	handler := RequestID()(APIKeyAuth([]string{string(hash)}, []string{"/api/v1/health"}, logging.NewNop())(okHandler()))

	tests := []struct {
		name   string
		path   string
		method string
		header map[string]string
		want   int
	}{
		{"missing key", "/api/v1/scans", http.MethodGet, nil, http.StatusUnauthorized},
		{"wrong key", "/api/v1/scans", http.MethodGet, map[string]string{APIKeyHeader: "nope"}, http.StatusUnauthorized},
		{"header key", "/api/v1/scans", http.MethodGet, map[string]string{APIKeyHeader: "s3cret"}, http.StatusOK},
		{"bearer token", "/api/v1/scans", http.MethodGet, map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"basic auth is not a key", "/api/v1/scans", http.MethodGet, map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
		{"query parameter", "/api/v1/ws?api_key=s3cret", http.MethodGet, nil, http.StatusOK},
		{"public path", "/api/v1/health", http.MethodGet, nil, http.StatusOK},
		{"preflight", "/api/v1/scans", http.MethodOptions, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)

			if tt.want == http.StatusUnauthorized {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "Unauthorized", body["error"])
				assert.NotEmpty(t, body["request_id"])
			}
		})
	}
}

func TestClientLimiter(t *testing.T) {
	limiter := NewClientLimiter(1, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, limiter.Allow("10.0.0.2"), "clients are independent")
	assert.Equal(t, 2, limiter.Clients())

	limiter.Cleanup(time.Hour)
	assert.Equal(t, 2, limiter.Clients())
	limiter.Cleanup(0)
	assert.Equal(t, 0, limiter.Clients())
}

func TestClientLimiter_Concurrent(t *testing.T) {
	limiter := NewClientLimiter(0.001, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(NewClientLimiter(0.001, 1), logging.NewNop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestContentType(t *testing.T) {
	handler := ContentType()(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"json post", http.MethodPost, "application/json", http.StatusOK},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"no content type", http.MethodPost, "", http.StatusOK},
		{"form post", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"get ignores header", http.MethodGet, "text/plain", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	handler := MaxBodySize(8)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, readErr = r.Body.Read(buf)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 32))))

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"ipv6 remote addr", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"forwarded for", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"no port", "192.0.2.9", nil, "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 5, rw.size)
	assert.Equal(t, rec, rw.Unwrap())
}

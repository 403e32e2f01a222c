package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var serverRoutes = []string{"/mcp", "/health", "/ping", "/metrics"}

// routeHandler answers like the server mux: /mcp only takes POST, the health
// and metrics routes answer 200 and anything else is a 404.
func routeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mcp":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		case "/health", "/ping", "/metrics":
			_, _ = w.Write([]byte("ok"))
		default:
			http.NotFound(w, r)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantRoute  string
	}{
		{name: "mcp call", method: http.MethodPost, path: "/mcp", wantStatus: http.StatusAccepted, wantRoute: "/mcp"},
		{name: "mcp wrong method", method: http.MethodGet, path: "/mcp", wantStatus: http.StatusMethodNotAllowed, wantRoute: "/mcp"},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantRoute: "/health"},
		{name: "scrape", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK, wantRoute: "/metrics"},
		{name: "unknown path", method: http.MethodGet, path: "/datasources/shop", wantStatus: http.StatusNotFound, wantRoute: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			metrics, err := NewHTTPMetrics(prometheus.NewRegistry(), serverRoutes...)
			require.NoError(t, err)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "10.0.0.7:5123"
			rec := httptest.NewRecorder()
			RequestLogger(zap.New(core), metrics)(routeHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, "HTTP request", entry.Message)
			assert.Equal(t, zap.DebugLevel, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, tt.method, fields["method"])
			assert.Equal(t, tt.path, fields["path"])
			assert.Equal(t, int64(tt.wantStatus), fields["status"])
			assert.Equal(t, "10.0.0.7:5123", fields["remote_addr"])
			assert.Contains(t, fields, "duration")

			assert.Equal(t, 1.0, testutil.ToFloat64(
				metrics.requests.WithLabelValues(tt.wantRoute, tt.method, strconv.Itoa(tt.wantStatus))))
			assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
		})
	}
}

type pingHandler struct{}

func (pingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func TestRequestLogger_NilLoggerAndMetricsPassThrough(t *testing.T) {
	handler := RequestLogger(nil, nil)(pingHandler{})

	assert.IsType(t, pingHandler{}, handler, "no wrapper is installed when there is nothing to record")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger_MetricsWithoutLogger(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(reg, serverRoutes...)
	require.NoError(t, err)

	handler := RequestLogger(nil, metrics)(routeHandler())
	for _, path := range []string{"/health", "/health", "/ping", "/unknown/123"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues("/health", http.MethodGet, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("/ping", http.MethodGet, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("other", http.MethodGet, "404")))

	// A second registration of the same collectors fails.
	_, err = NewHTTPMetrics(reg, serverRoutes...)
	assert.Error(t, err)
}

func TestRequestLogger_KeepsFirstStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	metrics, err := NewHTTPMetrics(nil, serverRoutes...)
	require.NoError(t, err)

	handler := RequestLogger(zap.New(core), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(http.StatusBadRequest), logs.All()[0].ContextMap()["status"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("/mcp", http.MethodPost, "400")))
	assert.Zero(t, testutil.ToFloat64(metrics.requests.WithLabelValues("/mcp", http.MethodPost, "500")))
}

func TestResponseWriter(t *testing.T) {
	t.Run("write implies 200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		_, err := rw.Write([]byte("{}"))
		require.NoError(t, err)
		assert.True(t, rw.headerWritten)
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("write after explicit status keeps it", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		rw.WriteHeader(http.StatusAccepted)
		_, err := rw.Write([]byte("{}"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, rw.statusCode)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("flush reaches the underlying writer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		rw.Flush()
		assert.True(t, rec.Flushed)
	})

	t.Run("unwrap exposes the underlying writer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		assert.Equal(t, http.ResponseWriter(rec), rw.Unwrap())
	})
}

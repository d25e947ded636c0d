package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		target        string
		expectedLevel string
		expectedAttrs []string
		status        int
	}{
		{
			name:          "successful pull",
			method:        http.MethodGet,
			target:        "/sync/pull?limit=10&device_id=dev-a",
			status:        http.StatusOK,
			expectedLevel: "INFO",
			expectedAttrs: []string{"path=/sync/pull", "device_id=dev-a", "status=200"},
		},
		{
			name:          "bad request",
			method:        http.MethodPost,
			target:        "/sync/push",
			status:        http.StatusBadRequest,
			expectedLevel: "WARN",
			expectedAttrs: []string{"method=POST", "status=400"},
		},
		{
			name:          "server error",
			method:        http.MethodPost,
			target:        "/sync",
			status:        http.StatusInternalServerError,
			expectedLevel: "ERROR",
			expectedAttrs: []string{"status=500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf strings.Builder
			logger := slog.New(slog.NewTextHandler(&logBuf, nil))

			handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.RemoteAddr = "192.168.1.1:12345"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)

			out := logBuf.String()
			assert.Contains(t, out, "level="+tt.expectedLevel)
			assert.Contains(t, out, "HTTP request")
			assert.Contains(t, out, "remote_addr=192.168.1.1:12345")
			assert.Contains(t, out, "bytes_written=4")
			for _, attr := range tt.expectedAttrs {
				assert.Contains(t, out, attr)
			}
		})
	}
}

func TestLogging_SkipPaths(t *testing.T) {
	var logBuf strings.Builder
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	handler := Logging(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, logBuf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Contains(t, logBuf.String(), "path=/stats")
	assert.NotContains(t, logBuf.String(), "device_id")
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	n, err := rw.Write([]byte("Hello, "))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = rw.Write([]byte("World!"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, int64(13), rw.written)
}

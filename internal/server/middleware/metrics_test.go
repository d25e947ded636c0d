package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	instrument := Metrics(registry)

	handler := instrument("/sync/pull", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for range 3 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/pull?limit=5", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}

	count, err := testutil.GatherAndCount(registry, "chatsync_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series per handler, method and code")
}

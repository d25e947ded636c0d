package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/pkg/api"
)

func newTestLimiter(t *testing.T, rate int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()

	limiter := NewRateLimiter(rate, window, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(limiter.Stop)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	return limiter, &now
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, now := newTestLimiter(t, 3, time.Minute)

	for i := range 3 {
		allowed, _ := limiter.Allow("dev-a")
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter := limiter.Allow("dev-a")
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retryAfter)

	// Другой ключ считается отдельно
	allowed, _ = limiter.Allow("dev-b")
	assert.True(t, allowed)

	*now = now.Add(40 * time.Second)
	_, retryAfter = limiter.Allow("dev-a")
	assert.Equal(t, 20*time.Second, retryAfter)

	// Новое окно восстанавливает лимит
	*now = now.Add(20 * time.Second)
	allowed, _ = limiter.Allow("dev-a")
	assert.True(t, allowed)
}

func TestRateLimiter_Evict(t *testing.T) {
	limiter, now := newTestLimiter(t, 1, time.Minute)

	limiter.Allow("old")
	*now = now.Add(90 * time.Second)
	limiter.Allow("fresh")

	*now = now.Add(60 * time.Second)
	limiter.evict()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.buckets, "old")
	assert.Contains(t, limiter.buckets, "fresh")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/sync/pull?device_id=dev-a").Code)
	assert.Equal(t, http.StatusOK, do("/sync/pull?device_id=dev-a").Code)

	w := do("/sync/pull?device_id=dev-a")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var env api.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "rate limit exceeded")

	// Без device_id ключом служит IP, у него свой лимит
	assert.Equal(t, http.StatusOK, do("/stats").Code)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		headers  map[string]string
		name     string
		target   string
		expected string
	}{
		{name: "device id wins", target: "/sync?device_id=dev-a", headers: map[string]string{"X-Real-IP": "1.1.1.1"}, expected: "device:dev-a"},
		{name: "forwarded for first hop", target: "/", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, expected: "203.0.113.5"},
		{name: "real ip", target: "/", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, expected: "198.51.100.7"},
		{name: "remote addr without port", target: "/", expected: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, clientKey(req))
		})
	}
}

package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/pkg/api"
)

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		handler     http.HandlerFunc
		name        string
		expectPanic bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("success"))
			},
		},
		{
			name:        "panic with string",
			handler:     func(w http.ResponseWriter, r *http.Request) { panic("something went wrong") },
			expectPanic: true,
		},
		{
			name:        "panic with custom type",
			handler:     func(w http.ResponseWriter, r *http.Request) { panic(struct{ msg string }{"critical"}) },
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Recovery(logger)(tt.handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync", nil))

			if !tt.expectPanic {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, "success", w.Body.String())
				return
			}

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var env api.Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, "internal server error", env.Error)
		})
	}
}

func TestRecovery_RepanicsOnAbortHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovery_LogsStackTrace(t *testing.T) {
	var logBuf strings.Builder
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("merge of different conversations")
	}))

	req := httptest.NewRequest(http.MethodPost, "/sync/push", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := logBuf.String()
	assert.Contains(t, out, "Panic recovered")
	assert.Contains(t, out, "merge of different conversations")
	assert.Contains(t, out, "/sync/push")
	assert.Contains(t, out, "goroutine")
}

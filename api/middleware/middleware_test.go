package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
	}{
		{"get ok", http.MethodGet, http.StatusOK},
		{"post ok", http.MethodPost, http.StatusOK},
		{"client error", http.MethodPost, http.StatusConflict},
		{"server error", http.MethodGet, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Logger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, "/status", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	wrapped := wrapResponseWriter(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, wrapped.Status())

	wrapped.WriteHeader(http.StatusAccepted)
	wrapped.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusAccepted, wrapped.Status())
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())

	h = Recovery(zap.NewNop())(http.HandlerFunc(okHandler))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminKey(t *testing.T) {
	h := AdminKey([]string{"secret", "other"}, zap.NewNop())(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{APIKeyHeader: "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{APIKeyHeader: "secret"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer other"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/stop", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	open := AdminKey(nil, zap.NewNop())(http.HandlerFunc(okHandler))
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	limiter, err := NewRateLimiter(0.001, 2, 2)
	require.NoError(t, err)
	h := RateLimit(limiter, zap.NewNop())(http.HandlerFunc(okHandler))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))

	// a third client evicts the least recently used bucket
	assert.Equal(t, http.StatusOK, call("10.0.0.3"))
	assert.Equal(t, 2, limiter.Clients())

	_, err = NewRateLimiter(1, 1, 0)
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "198.51.100.7", ClientIP(req))
}

package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	h := RateLimit(context.Background(), RateLimitConfig{RPS: 0.01, Burst: 3})(okHandler())

	for i := range 3 {
		w := hit(h, "192.168.1.1:1234")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := hit(h, "192.168.1.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_RejectionDoesNotConsume(t *testing.T) {
	h := RateLimit(context.Background(), RateLimitConfig{RPS: 5, Burst: 1})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)

	// One token refills after 200ms; rejected attempts must not push it back.
	require.Eventually(t, func() bool {
		return hit(h, "10.0.0.1:1").Code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(context.Background(), RateLimitConfig{RPS: 0.01, Burst: 1})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
}

func TestLimiterSet_Evict(t *testing.T) {
	set := newLimiterSet(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()

	set.limiter("old", now.Add(-2*time.Minute))
	set.limiter("fresh", now)
	set.evict(now)

	assert.NotContains(t, set.visitors, "old")
	assert.Contains(t, set.visitors, "fresh")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, remote: "10.0.0.9:1", want: "203.0.113.5"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.9:1", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "bare remote", remote: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/http/middleware"
)

func newRateLimitedHandler(cfg *config.RateLimitConfig, calls *int) http.Handler {
	rl := middleware.NewRateLimiter(cfg, zap.NewNop())
	return rl.LimitByIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiterDisabled(t *testing.T) {
	calls := 0
	h := newRateLimitedHandler(&config.RateLimitConfig{
		Enabled:           false,
		RequestsPerMinute: 2,
	}, &calls)

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 50, calls)
}

func TestRateLimiterWhitelistedIP(t *testing.T) {
	calls := 0
	h := newRateLimitedHandler(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 2,
		WhitelistIPs:      []string{"127.0.0.1"},
	}, &calls)

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 20, calls)
}

func TestRateLimiterWhitelistedPathPrefix(t *testing.T) {
	calls := 0
	h := newRateLimitedHandler(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 2,
		WhitelistPaths:    []string{"/health/*"},
	}, &calls)

	paths := []string{"/health/db", "/health/ready"}
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, paths[i%len(paths)], nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 20, calls)
}

func TestRateLimiterLimitExceeded(t *testing.T) {
	calls := 0
	h := newRateLimitedHandler(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 5,
	}, &calls)

	okCount := 0
	limitedCount := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		switch w.Code {
		case http.StatusOK:
			okCount++
		case http.StatusTooManyRequests:
			limitedCount++
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Greater(t, okCount, 0)
	assert.Greater(t, limitedCount, 0)
}

func TestRateLimiterXForwardedForWhitelist(t *testing.T) {
	calls := 0
	h := newRateLimitedHandler(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 2,
		WhitelistIPs:      []string{"10.0.0.1"},
	}, &calls)

	// The proxy address is not whitelisted, the forwarded client IP is
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.1.1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 10, calls)
}

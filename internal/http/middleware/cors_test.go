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

func corsHandler(cfg *config.CORSConfig, environment string) http.Handler {
	return middleware.CORS(cfg, environment, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSExplicitOriginAllowed(t *testing.T) {
	h := corsHandler(&config.CORSConfig{
		AllowedOrigins: []string{"https://insights.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	}, "production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("Origin", "https://insights.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://insights.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnknownOriginDenied(t *testing.T) {
	h := corsHandler(&config.CORSConfig{
		AllowedOrigins: []string{"https://insights.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	}, "production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOriginsConfiguredInProductionDeniesAll(t *testing.T) {
	h := corsHandler(&config.CORSConfig{
		AllowedMethods: []string{"GET"},
	}, "production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDevelopmentAllowsAnyOrigin(t *testing.T) {
	h := corsHandler(&config.CORSConfig{
		AllowedMethods: []string{"GET"},
	}, "development")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

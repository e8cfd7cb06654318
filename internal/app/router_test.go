package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/commentflow/internal/adapter/httpserver"
	"github.com/fairyhunter13/commentflow/internal/config"
)

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , "))
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 60}
	h := BuildRouter(cfg, &httpserver.Server{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterReadyzReportsUnconfiguredChecks(t *testing.T) {
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 60}
	h := BuildRouter(cfg, &httpserver.Server{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestRouterAssignsRequestID(t *testing.T) {
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 60}
	h := BuildRouter(cfg, &httpserver.Server{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

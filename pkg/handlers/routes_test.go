package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
)

func passthroughMiddleware(next http.HandlerFunc) http.HandlerFunc { return next }

// assertRouted checks that the mux resolves the method and path to a concrete
// handler rather than a 404 pattern.
func assertRouted(t *testing.T, mux *http.ServeMux, method, path string) {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	_, pattern := mux.Handler(r)
	assert.NotEmpty(t, pattern, "%s %s is not routed", method, path)
}

func TestHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	h := NewHealthHandler(&config.Config{Version: "test", Env: "local"}, nil, nil, zap.NewNop())
	h.RegisterRoutes(mux)

	for _, path := range []string{"/health", "/health/liveness"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ok", rec.Body.String())
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "benchlane-engine")
}

func TestTenantRouteSurface(t *testing.T) {
	mux := http.NewServeMux()

	NewSearchHandler(nil, zap.NewNop()).RegisterRoutes(mux, passthroughMiddleware)
	NewIngestionHandler(nil, nil, nil, nil, nil, zap.NewNop()).RegisterRoutes(mux, passthroughMiddleware)
	NewAnalyticsHandler(nil, nil, zap.NewNop()).RegisterRoutes(mux, passthroughMiddleware)
	NewMatchHandler(nil, zap.NewNop()).RegisterRoutes(mux, passthroughMiddleware)

	base := "/api/tenants/11111111-1111-1111-1111-111111111111"
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, base + "/search"},
		{http.MethodPost, base + "/search/hybrid"},
		{http.MethodPost, base + "/resumes"},
		{http.MethodPost, base + "/ingestion/resumes"},
		{http.MethodPost, base + "/requirements/ingest"},
		{http.MethodPost, base + "/ingestion/requirements"},
		{http.MethodPost, base + "/documents/upload-url"},
		{http.MethodPost, base + "/documents/presign"},
		{http.MethodPost, base + "/evaluations"},
		{http.MethodPost, base + "/evals/retrieval"},
		{http.MethodGet, base + "/evals/metrics"},
		{http.MethodGet, base + "/analytics/summary"},
		{http.MethodGet, base + "/analytics/snapshots"},
		{http.MethodPost, base + "/requirements/1/matches"},
		{http.MethodPost, base + "/matches/1/feedback"},
	}
	for _, route := range routes {
		assertRouted(t, mux, route.method, route.path)
	}
}

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/config"
)

func newTestServer(t *testing.T, secret []byte) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.MemoryBudgetBytes = 1 << 20
	cfg.VTCacheCapacity = 1 << 20
	cfg.WorkerThreads = 1
	cfg.AssetBaseDir = t.TempDir()

	engine, err := streamforge.New(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Shutdown)
	return New(engine, secret)
}

func TestStatsEndpointOpenWithoutSecret(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_requests")
}

func TestBearerTokenGate(t *testing.T) {
	s := newTestServer(t, []byte("test-secret"))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := s.IssueToken("ops", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemoryEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memory", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fragmentation")
}

func TestRingsEndpointValidation(t *testing.T) {
	s := newTestServer(t, nil)

	body := `[{"inner_radius":0,"outer_radius":100,"priority":"critical","max_assets":64}]`
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rings", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := `[{"inner_radius":0,"outer_radius":100,"priority":"urgent","max_assets":64}]`
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rings", strings.NewReader(bad)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrefetchEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prefetch", strings.NewReader(`{"x":0,"y":0,"z":0,"radius":50}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "emitted")

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prefetch", strings.NewReader(`{"radius":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamforge_engine")
}

package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.MemoryBudgetBytes = 1 << 20
	cfg.VTCacheCapacity = 1 << 20
	cfg.WorkerThreads = 1
	cfg.AssetBaseDir = t.TempDir()

	engine, err := streamforge.New(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Shutdown)
	return New(engine)
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamforge")
}

func TestAssetStatusRejectsNonHexID(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/zzz", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssetStatusReportsNonResident(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/1234?lod=0", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resident":false`)
}

func TestAssetDigestNotResidentIs404(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/1234/digest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemoryAndStatsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memory", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fragmentation")

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_requests")
}

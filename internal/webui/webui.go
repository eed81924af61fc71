// Package webui serves a small read-only asset browser for poking
// residency and memory state during development, with Swagger
// documentation mounted alongside. It is an introspection surface only;
// asset bytes are never served.
package webui

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// Server is the development web UI over one engine.
type Server struct {
	engine *streamforge.Engine
	router *gin.Engine
}

// New builds the UI router in release mode.
func New(engine *streamforge.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: engine}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.index)
	r.GET("/api/assets/:id", s.assetStatus)
	r.GET("/api/assets/:id/digest", s.assetDigest)
	r.GET("/api/memory", s.memory)
	r.GET("/api/stats", s.stats)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) index(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, indexHTML)
}

func parseAssetID(c *gin.Context) (assetmodel.ID, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset id must be hex"})
		return 0, false
	}
	return assetmodel.ID(id), true
}

// assetStatus reports residency per LOD for one asset.
//
//	@Summary  Asset residency
//	@Param    id   path   string true  "asset id, hex"
//	@Param    lod  query  int    false "LOD to test (default 0)"
//	@Success  200 {object} map[string]interface{}
//	@Router   /api/assets/{id} [get]
func (s *Server) assetStatus(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	lod, _ := strconv.Atoi(c.DefaultQuery("lod", "0"))

	perLod := make([]bool, assetmodel.MaxLods)
	for l := 0; l < assetmodel.MaxLods; l++ {
		_, perLod[l] = s.engine.GetAssetData(id, assetmodel.Lod(l))
	}
	c.JSON(http.StatusOK, gin.H{
		"asset_id":     strconv.FormatUint(uint64(id), 16),
		"resident":     s.engine.IsResident(id, assetmodel.Lod(lod)),
		"resident_lod": perLod,
	})
}

// assetDigest reports the BLAKE2b-256 digest of one resident LOD.
//
//	@Summary  Asset data digest
//	@Param    id   path   string true  "asset id, hex"
//	@Param    lod  query  int    false "LOD to digest (default 0)"
//	@Success  200 {object} map[string]interface{}
//	@Failure  404 {object} map[string]interface{}
//	@Router   /api/assets/{id}/digest [get]
func (s *Server) assetDigest(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	lod, _ := strconv.Atoi(c.DefaultQuery("lod", "0"))

	digest, ok := s.engine.AssetDigest(id, assetmodel.Lod(lod))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not resident at that LOD"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": strconv.FormatUint(uint64(id), 16), "lod": lod, "blake2b": digest})
}

// memory reports pool usage.
//
//	@Summary  Memory stats
//	@Success  200 {object} map[string]interface{}
//	@Router   /api/memory [get]
func (s *Server) memory(c *gin.Context) {
	m := s.engine.GetMemoryStats()
	c.JSON(http.StatusOK, gin.H{
		"used":          m.Used,
		"available":     m.Available,
		"fragmentation": m.Fragmentation,
	})
}

// stats reports the engine counters.
//
//	@Summary  Engine counters
//	@Success  200 {object} map[string]interface{}
//	@Router   /api/stats [get]
func (s *Server) stats(c *gin.Context) {
	snap := s.engine.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"total_requests": snap.TotalRequests,
		"completed":      snap.Completed,
		"failed":         snap.Failed,
		"cache_hits":     snap.CacheHits,
		"cache_misses":   snap.CacheMisses,
		"bytes_loaded":   snap.BytesLoaded,
		"bytes_evicted":  snap.BytesEvicted,
		"queue_depths":   snap.QueueDepths,
	})
}

const indexHTML = `<!doctype html>
<html>
<head><title>streamforge asset browser</title></head>
<body>
<h1>streamforge</h1>
<p>Read-only development browser. Endpoints:</p>
<ul>
<li><code>GET /api/assets/{id-hex}?lod=N</code></li>
<li><code>GET /api/assets/{id-hex}/digest?lod=N</code></li>
<li><code>GET /api/memory</code></li>
<li><code>GET /api/stats</code></li>
<li><a href="/swagger/index.html">Swagger UI</a></li>
</ul>
</body>
</html>
`

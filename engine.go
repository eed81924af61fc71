// Package streamforge is the asset streaming engine: a concurrent cache,
// prefetcher, and I/O pipeline that serves a multi-gigabyte asset world
// under a fixed memory budget with bounded-latency frame updates.
//
// The Engine type is the host-facing surface. A host creates one Engine
// per world, calls Update once per frame with the camera pose, requests
// assets by id and LOD, and reads resident bytes back through
// GetAssetData. Everything else (prefetch rings, LRU eviction,
// defragmentation, virtual-texture paging) happens behind this facade.
package streamforge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/catalog"
	"github.com/kestrel-engine/streamforge/internal/config"
	"github.com/kestrel-engine/streamforge/internal/logger"
	"github.com/kestrel-engine/streamforge/internal/pool"
	"github.com/kestrel-engine/streamforge/internal/prefetch"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/reader"
	"github.com/kestrel-engine/streamforge/internal/resident"
	"github.com/kestrel-engine/streamforge/internal/scheduler"
	"github.com/kestrel-engine/streamforge/internal/spatial"
	"github.com/kestrel-engine/streamforge/internal/stats"
	"github.com/kestrel-engine/streamforge/internal/vtexture"
)

// Re-exported identifier and priority types, so hosts only import this
// package.
type (
	AssetID  = assetmodel.ID
	Lod      = assetmodel.Lod
	Priority = queue.Priority
	Point    = spatial.Point
)

const (
	Critical         = queue.Critical
	High             = queue.High
	Normal           = queue.Normal
	PrefetchPriority = queue.Prefetch
	Low              = queue.Low
)

// worldHalfExtent is the fixed world cube half-extent, ±10 km.
const worldHalfExtent = 10_000

// handleSweepInterval is how often, in frames, the local backend's idle
// file handles are swept closed.
const handleSweepInterval = 600

// catalogSnapshotInterval is how often, in frames, a stats snapshot is
// archived to the optional catalog (once a minute at 60 fps).
const catalogSnapshotInterval = 3600

// RequestHandle identifies one streaming request: the ring handle used
// to poll status, plus an opaque token for host-side correlation and
// logging.
type RequestHandle struct {
	H     queue.Handle
	Token string
}

// Engine is one streaming engine instance. All methods are safe for
// concurrent use by the host thread and its own workers, except Shutdown,
// which must be called exactly once after all other calls have returned.
type Engine struct {
	cfg *config.Config

	pool    *pool.Pool
	table   *resident.Table
	index   *spatial.Index
	queue   *queue.Queue
	backend reader.Backend
	sched   *scheduler.Scheduler
	pref    *prefetch.Controller
	vt      *vtexture.Manager
	stats   *stats.Collector
	cat     catalog.Catalog

	frame  atomic.Uint64
	cancel context.CancelFunc
	closed atomic.Bool
}

// Option configures an Engine at construction time.
type Option func(*engineOptions)

type engineOptions struct {
	backend reader.Backend
	cat     catalog.Catalog
}

// WithBackend substitutes the asset resolver backend (local is the
// default; S3, Azure, and GCS backends live in internal/reader and are
// selected by the serve command from configuration).
func WithBackend(b reader.Backend) Option {
	return func(o *engineOptions) { o.backend = b }
}

// WithCatalog substitutes the durable asset catalog; the default is
// resolved from the configured DSN, or a no-op when none is set.
func WithCatalog(c catalog.Catalog) Option {
	return func(o *engineOptions) { o.cat = c }
}

// New builds and starts an Engine from cfg. Worker goroutines are running
// when New returns; the caller owns the Engine and must call Shutdown.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.backend == nil {
		o.backend = reader.NewLocalBackend(cfg.AssetBaseDir)
	}
	if o.cat == nil {
		cat, err := catalog.Open(cfg.CatalogDSN)
		if err != nil {
			return nil, fmt.Errorf("streamforge: open catalog: %w", err)
		}
		o.cat = cat
	}

	p := pool.New(cfg.MemoryBudgetBytes)
	table := resident.NewTable(p)
	q := queue.New()
	index := spatial.NewIndex(worldHalfExtent)

	sched := scheduler.New(q, table, p, o.backend,
		scheduler.WithWorkerCount(cfg.WorkerThreads),
		scheduler.WithIOBytesPerSec(cfg.IOBytesPerSec),
	)

	pref := prefetch.New(index, q, table, p,
		prefetch.WithDefragTriggers(cfg.DefragFragmentationTrigger, cfg.DefragFreeTailTrigger),
	)
	if rings := cfg.Rings(); len(rings) > 0 {
		pref.ConfigureRings(rings)
	}

	vtm, err := vtexture.NewManager(q, table, cfg.VTCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("streamforge: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		pool:    p,
		table:   table,
		index:   index,
		queue:   q,
		backend: o.backend,
		sched:   sched,
		pref:    pref,
		vt:      vtm,
		stats:   stats.New(sched, p, q, table),
		cat:     o.cat,
	}

	sched.HeaderObserver = e.recordHeader

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	sched.Start(ctx)
	return e, nil
}

// recordHeader archives a parsed header in the catalog off the hot path.
// Catalog failures are logged, never surfaced to the request.
func (e *Engine) recordHeader(h *assetmodel.Header) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.cat.RecordHeader(ctx, h); err != nil {
			logger.Warn("catalog: %v", err)
		}
	}()
}

// Shutdown stops every worker, drops pending requests without firing
// their callbacks, and releases backend and catalog resources.
func (e *Engine) Shutdown() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.cancel()
	e.sched.Stop()
	if err := e.backend.Close(); err != nil {
		logger.Warn("backend close: %v", err)
	}
	if err := e.cat.Close(); err != nil {
		logger.Warn("catalog close: %v", err)
	}
}

// Update advances the engine one frame: feeds the camera pose to the
// prefetch controller (which emits ring requests and may trigger
// defragmentation), sweeps idle file handles, and periodically archives
// stats. Call once per frame from the host thread.
func (e *Engine) Update(cameraPos, cameraVel Point, dt float64) {
	frame := e.frame.Add(1)

	if lb, ok := e.backend.(*reader.LocalBackend); ok {
		lb.SetFrame(frame)
		if frame%handleSweepInterval == 0 {
			lb.Sweep()
		}
	}

	e.pref.Update(cameraPos, cameraVel, dt)

	if frame%catalogSnapshotInterval == 0 {
		e.archiveSnapshot()
	}
}

func (e *Engine) archiveSnapshot() {
	snap := e.stats.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := e.cat.RecordSnapshot(ctx, catalog.Snapshot{
			TakenAt:            time.Now(),
			TotalRequests:      snap.TotalRequests,
			Completed:          snap.Completed,
			Failed:             snap.Failed,
			CacheHits:          snap.CacheHits,
			CacheMisses:        snap.CacheMisses,
			BytesLoaded:        snap.BytesLoaded,
			BytesEvicted:       snap.BytesEvicted,
			CurrentMemoryUsage: snap.CurrentMemoryUsage,
			PeakMemoryUsage:    snap.PeakMemoryUsage,
			ResidentAssetCount: snap.ResidentAssets,
		})
		if err != nil {
			logger.Warn("catalog: %v", err)
		}
	}()
}

// RegisterAsset records an asset's world-space bounding sphere so the
// prefetch rings can discover it.
func (e *Engine) RegisterAsset(id AssetID, center Point, radius float64) {
	e.pref.RegisterAsset(id, center, radius)
}

// RequestAsset enqueues a load of id at the given priority and LOD and
// returns a handle the host can poll with RequestStatus.
func (e *Engine) RequestAsset(id AssetID, priority Priority, lod Lod) RequestHandle {
	h := e.queue.Enqueue(queue.Request{
		AssetID:  id,
		Priority: priority,
		Lod:      lod,
		Frame:    e.frame.Load(),
	})
	return RequestHandle{H: h, Token: uuid.NewString()}
}

// RequestStatus reports a request's current status. Handles from before a
// ring wrap report Failed rather than aliasing a newer request.
func (e *Engine) RequestStatus(h RequestHandle) queue.Status {
	if r, ok := e.queue.Get(h.H); ok {
		return r.Status
	}
	return queue.Failed
}

// IsResident reports whether id is resident at LOD lod or better.
func (e *Engine) IsResident(id AssetID, lod Lod) bool {
	rec, ok := e.table.Lookup(id)
	return ok && rec.CurrentLod <= lod && rec.HasLod(rec.CurrentLod)
}

// GetAssetData returns a view of id's resident bytes at exactly LOD lod,
// touching the LRU. The view is valid until the asset is evicted or the
// pool is defragmented; hosts that hold it across frames must pin the
// asset with LockAsset first.
func (e *Engine) GetAssetData(id AssetID, lod Lod) ([]byte, bool) {
	rec, ok := e.table.Touch(id, e.frame.Load())
	if !ok || !rec.HasLod(lod) {
		return nil, false
	}
	buf, ok := e.pool.Resolve(rec.Lods[lod].Handle)
	if !ok {
		return nil, false
	}
	return buf[:rec.Lods[lod].Size], true
}

// LockAsset pins id against eviction. Returns false if id is not
// resident.
func (e *Engine) LockAsset(id AssetID) bool {
	rec, ok := e.table.Lookup(id)
	if !ok {
		return false
	}
	resident.Lock(rec)
	return true
}

// UnlockAsset releases a pin taken by LockAsset.
func (e *Engine) UnlockAsset(id AssetID) {
	if rec, ok := e.table.Lookup(id); ok {
		resident.Unlock(rec)
	}
}

// CreateVirtualTexture allocates the sparse page matrix and indirection
// map for a logical texture of the given dimensions.
func (e *Engine) CreateVirtualTexture(width, height, format uint32) *vtexture.VirtualTexture {
	return e.vt.Create(width, height, format)
}

// RequestVTPage enqueues a High-priority load of one virtual-texture
// page.
func (e *Engine) RequestVTPage(vt *vtexture.VirtualTexture, x, y, mip uint32) *vtexture.Page {
	return e.vt.RequestPage(vt, x, y, mip)
}

// UpdateVTIndirection rewrites vt's indirection map from its pages'
// current residency.
func (e *Engine) UpdateVTIndirection(vt *vtexture.VirtualTexture) {
	e.vt.UpdateIndirection(vt)
}

// MemoryStats is the (used, available, fragmentation) triple of the
// public get_memory_stats call.
type MemoryStats struct {
	Used          int64
	Available     int64
	Fragmentation float64
}

// GetMemoryStats reports the pool's current usage.
func (e *Engine) GetMemoryStats() MemoryStats {
	s := e.pool.Stats()
	return MemoryStats{
		Used:          s.Used,
		Available:     s.Total - s.Used,
		Fragmentation: s.Fragmentation,
	}
}

// GetStats returns a snapshot of every engine counter and emits the
// operational alerts when the window's success or cache-hit rate has
// fallen below the fixed thresholds.
func (e *Engine) GetStats() stats.Snapshot {
	snap := e.stats.Snapshot()
	logger.CheckOperationalAlerts(
		snap.SuccessRate(), snap.CacheHitRate(),
		stats.SuccessRateAlertThreshold, stats.CacheHitRateAlertThreshold,
	)
	return snap
}

// ResetStats zeroes the load-time accumulators; the monotonic counters
// are left untouched.
func (e *Engine) ResetStats() { e.stats.Reset() }

// DumpState writes a textual snapshot of counters, memory, resident
// assets, and queue depths to path.
func (e *Engine) DumpState(path string) error { return e.stats.DumpState(path) }

// ConfigureRings replaces the prefetch controller's streaming rings.
func (e *Engine) ConfigureRings(rings []prefetch.Ring) { e.pref.ConfigureRings(rings) }

// PrefetchRadius issues a one-shot Prefetch-priority sweep of every
// registered asset within radius of center.
func (e *Engine) PrefetchRadius(center Point, radius float64) int {
	return e.pref.PrefetchRadius(center, radius)
}

// UpdateCameraPrediction sets the camera motion model directly without
// advancing a frame.
func (e *Engine) UpdateCameraPrediction(pos, vel, accel Point) {
	e.pref.UpdateCameraPrediction(pos, vel, accel)
}

// AssetDigest returns the hex BLAKE2b-256 digest of id's resident bytes
// at LOD lod, for hosts auditing loaded data beyond the header's 32-bit
// checksum. Does not touch the LRU.
func (e *Engine) AssetDigest(id AssetID, lod Lod) (string, bool) {
	rec, ok := e.table.Lookup(id)
	if !ok || !rec.HasLod(lod) {
		return "", false
	}
	buf, ok := e.pool.Resolve(rec.Lods[lod].Handle)
	if !ok {
		return "", false
	}
	return reader.Digest(buf[:rec.Lods[lod].Size]), true
}

// Stats exposes the collector itself, so the admin API can mount its
// Prometheus registry at /metrics.
func (e *Engine) Stats() *stats.Collector { return e.stats }

// QueueDepths reports the five per-priority queue depths, Critical
// first.
func (e *Engine) QueueDepths() [5]int { return e.queue.Depths() }

// Frame reports the current engine frame counter.
func (e *Engine) Frame() uint64 { return e.frame.Load() }

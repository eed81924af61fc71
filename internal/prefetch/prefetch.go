// Package prefetch implements the Prefetch Controller: concentric
// streaming rings driven by camera position and velocity, projecting
// future positions, querying the spatial index, and emitting
// priority-tagged requests.
package prefetch

import (
	"math"
	"sync"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/pool"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/resident"
	"github.com/kestrel-engine/streamforge/internal/spatial"
)

// predictionSteps is the small window of future positions extrapolated
// each update.
const predictionSteps = 8

// predictionDt is the fixed step used for extrapolation, 1/60 s.
const predictionDt = 1.0 / 60.0

const (
	defaultFragmentationTrigger = 0.30
	defaultFreeTailTrigger      = 256 * 1024 * 1024
	defaultFOVRadians           = math.Pi / 2 // 90 degrees
)

// Ring is one concentric streaming shell around the camera, with its
// own priority and asset cap.
type Ring struct {
	InnerRadius float64
	OuterRadius float64
	Priority    queue.Priority
	MaxAssets   int
}

// DefaultRings returns the standard four concentric rings.
func DefaultRings() []Ring {
	return []Ring{
		{InnerRadius: 0, OuterRadius: 50, Priority: queue.Critical, MaxAssets: 256},
		{InnerRadius: 50, OuterRadius: 150, Priority: queue.High, MaxAssets: 512},
		{InnerRadius: 150, OuterRadius: 300, Priority: queue.Normal, MaxAssets: 1024},
		{InnerRadius: 300, OuterRadius: 500, Priority: queue.Prefetch, MaxAssets: 2048},
	}
}

// CameraState holds the host's last-reported camera pose plus the small
// window of predicted future positions.
type CameraState struct {
	Position  spatial.Point
	Velocity  spatial.Point
	Accel     spatial.Point
	Predicted [predictionSteps]spatial.Point
}

// assetMeta is the bounding-sphere metadata the controller needs to
// compute a screen-size-derived LOD for a candidate id; the spatial index
// itself only answers membership queries, not per-id radius lookups.
type assetMeta struct {
	center spatial.Point
	radius float64
}

// Controller turns camera motion into prefetch requests.
type Controller struct {
	Index *spatial.Index
	Queue *queue.Queue
	Table *resident.Table
	Pool  *pool.Pool

	fovRadians        float64
	fragTrigger       float64
	freeTailTrigger   int64
	onDefragRequested func()

	mu    sync.Mutex
	rings []Ring
	cam   CameraState
	meta  map[assetmodel.ID]assetMeta

	frame uint64
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithFOV overrides the default 90-degree field of view used by the LOD
// projection.
func WithFOV(radians float64) Option {
	return func(c *Controller) { c.fovRadians = radians }
}

// WithDefragTriggers overrides the default fragmentation (0.30) and free
// tail (256 MiB) thresholds that invoke Pool.Defragment.
func WithDefragTriggers(fragmentation float64, freeTailBytes int64) Option {
	return func(c *Controller) {
		c.fragTrigger = fragmentation
		c.freeTailTrigger = freeTailBytes
	}
}

// New creates a Controller wired to the given spatial index, request
// queue, resident table, and memory pool, with the default four rings.
func New(index *spatial.Index, q *queue.Queue, table *resident.Table, p *pool.Pool, opts ...Option) *Controller {
	c := &Controller{
		Index:           index,
		Queue:           q,
		Table:           table,
		Pool:            p,
		fovRadians:      defaultFOVRadians,
		fragTrigger:     defaultFragmentationTrigger,
		freeTailTrigger: defaultFreeTailTrigger,
		rings:           DefaultRings(),
		meta:            make(map[assetmodel.ID]assetMeta),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ConfigureRings replaces the controller's ordered ring list, innermost
// to outermost.
func (c *Controller) ConfigureRings(rings []Ring) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rings = append([]Ring(nil), rings...)
}

// RegisterAsset records an asset's world-space bounding sphere in both
// the spatial index and the controller's own LOD-projection metadata;
// the spatial index alone doesn't expose per-id radius lookups, so the
// controller keeps the pairing it needs for the screen-size
// formula.
func (c *Controller) RegisterAsset(id assetmodel.ID, center spatial.Point, radius float64) {
	c.Index.Insert(id, center, radius)
	c.mu.Lock()
	c.meta[id] = assetMeta{center: center, radius: radius}
	c.mu.Unlock()
}

// Update records pos and vel as the camera state, extrapolates eight
// future positions at fixed predictionDt steps (dt is not used), queries
// every ring around pos, and emits requests for any candidate not already
// resident at or below its target LOD. It returns the number of requests
// emitted.
func (c *Controller) Update(pos, vel spatial.Point, dt float64) int {
	c.mu.Lock()
	c.frame++
	frame := c.frame
	c.cam.Position = pos
	c.cam.Velocity = vel
	accel := c.cam.Accel
	c.cam.Predicted = extrapolate(pos, vel, accel)
	rings := append([]Ring(nil), c.rings...)
	fov := c.fovRadians
	c.mu.Unlock()

	emitted := 0
	for _, ring := range rings {
		ids := c.Index.QueryRadius(pos, ring.OuterRadius, ring.MaxAssets)
		for _, id := range ids {
			if c.emitIfNeeded(id, pos, fov, ring, frame) {
				emitted++
			}
		}
	}

	c.maybeDefragment()
	return emitted
}

// UpdateCameraPrediction lets the host directly set the camera's motion
// model (position, velocity, acceleration) without advancing a frame.
func (c *Controller) UpdateCameraPrediction(pos, vel, accel spatial.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cam.Position = pos
	c.cam.Velocity = vel
	c.cam.Accel = accel
	c.cam.Predicted = extrapolate(pos, vel, accel)
}

// Camera returns a snapshot of the controller's current camera state.
func (c *Controller) Camera() CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam
}

// extrapolate projects predictionSteps future positions at predictionDt
// intervals using a constant-acceleration model; the default
// acceleration is zero, yielding straight-line extrapolation.
func extrapolate(pos, vel, accel spatial.Point) [predictionSteps]spatial.Point {
	var out [predictionSteps]spatial.Point
	p, v := pos, vel
	for i := 0; i < predictionSteps; i++ {
		v = spatial.Point{
			X: v.X + accel.X*predictionDt,
			Y: v.Y + accel.Y*predictionDt,
			Z: v.Z + accel.Z*predictionDt,
		}
		p = spatial.Point{
			X: p.X + v.X*predictionDt,
			Y: p.Y + v.Y*predictionDt,
			Z: p.Z + v.Z*predictionDt,
		}
		out[i] = p
	}
	return out
}

// emitIfNeeded computes the candidate's target LOD and, unless it's
// already resident at or below that LOD, enqueues a request at the
// ring's priority.
func (c *Controller) emitIfNeeded(id assetmodel.ID, cameraPos spatial.Point, fov float64, ring Ring, frame uint64) bool {
	c.mu.Lock()
	meta, ok := c.meta[id]
	c.mu.Unlock()
	if !ok {
		return false
	}

	distance := cameraPos.DistanceTo(meta.center)
	target := CalculateLod(meta.radius, distance, fov)

	if rec, resident := c.Table.Lookup(id); resident && rec.CurrentLod <= target {
		return false
	}

	c.Queue.Enqueue(queue.Request{
		AssetID:  id,
		Priority: ring.Priority,
		Lod:      target,
		Frame:    frame,
	})
	return true
}

// PrefetchRadius issues an immediate, one-shot Prefetch-priority sweep of
// every candidate within radius of center, independent of the configured
// rings.
func (c *Controller) PrefetchRadius(center spatial.Point, radius float64) int {
	const maxCandidates = 4096
	ids := c.Index.QueryRadius(center, radius, maxCandidates)
	frame := c.currentFrame()
	emitted := 0
	for _, id := range ids {
		if rec, resident := c.Table.Lookup(id); resident && rec.CurrentLod == 0 {
			continue
		}
		c.Queue.Enqueue(queue.Request{
			AssetID:  id,
			Priority: queue.Prefetch,
			Lod:      0,
			Frame:    frame,
		})
		emitted++
	}
	return emitted
}

func (c *Controller) currentFrame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// maybeDefragment runs the pool's compaction pass when fragmentation
// exceeds the configured threshold and the contiguous free tail has
// fallen below the configured floor. Defragmentation is synchronous and
// may consume the remainder of the frame.
func (c *Controller) maybeDefragment() {
	stats := c.Pool.Stats()
	if stats.Fragmentation > c.fragTrigger && stats.FreeTail < c.freeTailTrigger {
		c.Pool.Defragment()
		if c.onDefragRequested != nil {
			c.onDefragRequested()
		}
	}
}

// CalculateLod maps an object's bounding-sphere radius and distance from
// the camera, at the given field of view, to a LOD tier using the
// projected screen-size thresholds. It is non-decreasing in distance for
// fixed radius and fov.
func CalculateLod(objectRadius, distance, fovRadians float64) assetmodel.Lod {
	if distance <= 0 {
		return 0
	}
	screenSize := (2 * objectRadius) / (distance * math.Tan(fovRadians/2))
	switch {
	case screenSize > 0.5:
		return 0
	case screenSize > 0.25:
		return 1
	case screenSize > 0.125:
		return 2
	case screenSize > 0.0625:
		return 3
	default:
		return 4
	}
}

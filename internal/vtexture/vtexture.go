// Package vtexture implements the Virtual-Texture Manager: a sparse page
// grid over a logical texture up to 16K×16K, 4K×4K pages, page-request
// coalescing through the Streaming Scheduler's request queue, and an
// indirection map update.
//
// The VT cache backing is a separate allocation from the engine's general
// memory pool, realized here with an admission-counting ristretto cache
// rather than a second hand-rolled arena: ristretto's recency/frequency
// policy is a better fit for page eviction than reusing the pool's
// best-fit allocator, which is tuned for variable-size LOD buffers, not
// uniform page tiles.
package vtexture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/resident"
)

const (
	pageDim           = 4096 // 4K×4K pages
	defaultIndirDim   = 2048 // default 2048x2048x4-byte indirection map
	indirCellBytes    = 4
	defaultCacheBytes = 256 * 1024 * 1024
)

// PageCoord addresses one page of one mip level.
type PageCoord struct {
	X, Y, Mip uint32
}

// Page is one sparse page-grid entry.
type Page struct {
	Coord           PageCoord
	CacheIndex      uint32
	LastAccessFrame uint64
	Locked          bool
	RefCount        atomic.Int32
	resident        atomic.Bool
}

// VirtualTexture is a single logical texture's sparse page state.
type VirtualTexture struct {
	ID          uint32
	Width       uint32
	Height      uint32
	Format      uint32
	PageGridW   uint32
	PageGridH   uint32
	MipCount    uint32
	Indirection []byte
	indirDim    int

	mu    sync.RWMutex
	pages map[PageCoord]*Page
}

func mipCountFor(w, h uint32) uint32 {
	count := uint32(1)
	for w > pageDim || h > pageDim {
		w /= 2
		h /= 2
		count++
	}
	return count
}

// Manager owns every live VirtualTexture and the shared page-byte cache.
type Manager struct {
	queue *queue.Queue
	table *resident.Table

	cache *ristretto.Cache

	mu       sync.Mutex
	textures map[uint32]*VirtualTexture
	nextID   uint32
	nextIdx  uint32
}

// NewManager creates a manager whose page cache is bounded by
// cacheBytes (0 uses the default of 256 MiB).
func NewManager(q *queue.Queue, table *resident.Table, cacheBytes int64) (*Manager, error) {
	if cacheBytes <= 0 {
		cacheBytes = defaultCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheBytes / 10,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("vtexture: create cache: %w", err)
	}
	return &Manager{
		queue:    q,
		table:    table,
		cache:    cache,
		textures: make(map[uint32]*VirtualTexture),
	}, nil
}

// Create allocates the sparse page matrix and indirection map for a new
// logical texture.
func (m *Manager) Create(width, height, format uint32) *VirtualTexture {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	vt := &VirtualTexture{
		ID:          id,
		Width:       width,
		Height:      height,
		Format:      format,
		PageGridW:   (width + pageDim - 1) / pageDim,
		PageGridH:   (height + pageDim - 1) / pageDim,
		MipCount:    mipCountFor(width, height),
		Indirection: make([]byte, defaultIndirDim*defaultIndirDim*indirCellBytes),
		indirDim:    defaultIndirDim,
		pages:       make(map[PageCoord]*Page),
	}

	m.mu.Lock()
	m.textures[id] = vt
	m.mu.Unlock()
	return vt
}

// pseudoAssetID synthesizes the per-page asset id:
// (vt_identity << 32) | (y << 16) | x.
func pseudoAssetID(vtID, x, y uint32) assetmodel.ID {
	return assetmodel.ID(uint64(vtID)<<32 | uint64(y)<<16 | uint64(x))
}

// RequestPage synthesizes the page's pseudo asset id and enqueues a
// High-priority load, coalescing repeat requests for an already-resident
// page. A page whose load is still in flight is enqueued again on a
// repeat request.
func (m *Manager) RequestPage(vt *VirtualTexture, x, y, mip uint32) *Page {
	coord := PageCoord{X: x, Y: y, Mip: mip}

	vt.mu.Lock()
	page, ok := vt.pages[coord]
	if !ok {
		page = &Page{Coord: coord}
		vt.pages[coord] = page
	}
	vt.mu.Unlock()

	if page.resident.Load() {
		return page
	}

	id := pseudoAssetID(vt.ID, x, y)
	m.queue.Enqueue(queue.Request{
		AssetID:  id,
		Priority: queue.High,
		Lod:      assetmodel.Lod(mip),
		VTPage:   page,
		Callback: func(_ queue.Handle, req *queue.Request) {
			m.onPageLoaded(id, req)
		},
	})
	return page
}

func (m *Manager) onPageLoaded(id assetmodel.ID, req *queue.Request) {
	page, _ := req.VTPage.(*Page)
	if page == nil {
		return
	}
	if req.Status != queue.Complete {
		return
	}

	rec, ok := m.table.Lookup(id)
	if !ok {
		return
	}

	m.mu.Lock()
	idx := m.nextIdx
	m.nextIdx++
	m.mu.Unlock()

	page.CacheIndex = idx
	page.LastAccessFrame = req.Frame
	page.resident.Store(true)

	m.cache.Set(cacheKey(id), rec.AggregateSize, rec.AggregateSize)
	m.cache.Wait()
}

func cacheKey(id assetmodel.ID) string {
	return fmt.Sprintf("vt-page-%016x", uint64(id))
}

// UpdateIndirection rewrites vt's indirection map: each cell's covering
// page, if resident, encodes (cache_index_lo, cache_index_hi, mip,
// 0xFF); otherwise the cell is zeroed.
func (m *Manager) UpdateIndirection(vt *VirtualTexture) {
	vt.mu.RLock()
	defer vt.mu.RUnlock()

	cellsPerPageX := float64(vt.indirDim) / float64(vt.PageGridW)
	cellsPerPageY := float64(vt.indirDim) / float64(vt.PageGridH)

	for cy := 0; cy < vt.indirDim; cy++ {
		pageY := uint32(float64(cy) / cellsPerPageY)
		for cx := 0; cx < vt.indirDim; cx++ {
			pageX := uint32(float64(cx) / cellsPerPageX)
			off := (cy*vt.indirDim + cx) * indirCellBytes

			page, ok := vt.pages[PageCoord{X: pageX, Y: pageY}]
			if !ok || !page.resident.Load() {
				vt.Indirection[off] = 0
				vt.Indirection[off+1] = 0
				vt.Indirection[off+2] = 0
				vt.Indirection[off+3] = 0
				continue
			}

			vt.Indirection[off] = byte(page.CacheIndex & 0xFF)
			vt.Indirection[off+1] = byte(page.CacheIndex >> 8 & 0xFF)
			vt.Indirection[off+2] = byte(page.Coord.Mip)
			vt.Indirection[off+3] = 0xFF
		}
	}
}

// Package resident implements the resident asset table: an O(1) hash
// map plus an intrusive LRU list over resident asset records. The hash
// map uses fixed bucket chaining with an explicit 64-bit integer mix,
// rather than relying on Go's built-in map, so that bucket distribution
// is deterministic across platforms.
package resident

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/pool"
)

// bucketCount must be a power of two.
const bucketCount = 4096

// LodBuffer is a borrowed view into the memory pool: a resident asset's
// LOD data lives here as a handle, never a raw slice.
type LodBuffer struct {
	Handle pool.Handle
	Size   int64
}

// Record is a resident asset: the ResidentAsset.
type Record struct {
	AssetID         assetmodel.ID
	Type            uint32
	CurrentLod      assetmodel.Lod
	Lods            [assetmodel.MaxLods]LodBuffer // zero Handle = absent LOD
	AggregateSize   int64
	LastAccessFrame uint64
	RefCount        atomic.Int32

	bucket int
	elem   *list.Element // position in the LRU list; elem.Value == this *Record
}

// HasLod reports whether LOD l is loaded.
func (r *Record) HasLod(l assetmodel.Lod) bool {
	if int(l) < 0 || int(l) >= len(r.Lods) {
		return false
	}
	return r.Lods[l].Handle != 0
}

// Table is the resident asset table plus LRU eviction order.
type Table struct {
	mu      sync.Mutex
	buckets [][]*Record
	lru     *list.List // front = least recently used, back = most recently used
	pool    *pool.Pool
	count   int
}

// NewTable creates an empty table backed by p for LOD buffer storage.
func NewTable(p *pool.Pool) *Table {
	return &Table{
		buckets: make([][]*Record, bucketCount),
		lru:     list.New(),
		pool:    p,
	}
}

// mix64 is a splitmix64-style avalanche used to spread asset ids across
// buckets.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func bucketFor(id assetmodel.ID) int {
	return int(mix64(uint64(id)) & (bucketCount - 1))
}

// Lookup returns the resident record for id, without affecting LRU order.
func (t *Table) Lookup(id assetmodel.ID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupLocked(id)
}

func (t *Table) lookupLocked(id assetmodel.ID) (*Record, bool) {
	b := bucketFor(id)
	for _, r := range t.buckets[b] {
		if r.AssetID == id {
			return r, true
		}
	}
	return nil, false
}

// Insert adds a newly loaded record, placing it at the most-recently-used
// end of the LRU list.
func (t *Table) Insert(r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := bucketFor(r.AssetID)
	r.bucket = b
	t.buckets[b] = append(t.buckets[b], r)
	r.elem = t.lru.PushBack(r)
	t.count++
}

// Touch moves id to the most-recently-used position and records the
// access frame. Every successful public-API data access calls this.
func (t *Table) Touch(id assetmodel.ID, frame uint64) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.lookupLocked(id)
	if !ok {
		return nil, false
	}
	t.lru.MoveToBack(r.elem)
	r.LastAccessFrame = frame
	return r, true
}

// Remove unlinks id from both the hash map and the LRU list. It does not
// free the record's pool allocations; callers that evict must do that
// themselves first.
func (t *Table) Remove(id assetmodel.ID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(id)
}

func (t *Table) removeLocked(id assetmodel.ID) (*Record, bool) {
	r, ok := t.lookupLocked(id)
	if !ok {
		return nil, false
	}
	chain := t.buckets[r.bucket]
	for i, c := range chain {
		if c == r {
			t.buckets[r.bucket] = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	t.lru.Remove(r.elem)
	t.count--
	return r, true
}

// Count returns the number of resident records.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// EvictLRU walks from the least-recently-used end, skipping any record
// with a non-zero reference count, freeing every LOD buffer of the
// records it does evict back to the pool, and removing them from both the
// hash map and the LRU list. It stops once bytesNeeded has been freed or
// the list is exhausted, and returns the number of bytes actually freed.
func (t *Table) EvictLRU(bytesNeeded int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var freed int64
	elem := t.lru.Front()
	for elem != nil && freed < bytesNeeded {
		next := elem.Next()
		r := elem.Value.(*Record)
		if r.RefCount.Load() == 0 {
			for i, lb := range r.Lods {
				if lb.Handle != 0 {
					t.pool.Free(lb.Handle)
					freed += lb.Size
					r.Lods[i] = LodBuffer{}
				}
			}
			t.removeLocked(r.AssetID)
		}
		elem = next
	}
	return freed
}

// Lock pins an asset against eviction by incrementing its reference
// count. Unlock decrements it. Both are safe to call without the table
// lock; ref counts are plain atomics, re-checked under the table lock
// at eviction time to avoid the evict-after-lock race.
func Lock(r *Record)   { r.RefCount.Add(1) }
func Unlock(r *Record) { r.RefCount.Add(-1) }

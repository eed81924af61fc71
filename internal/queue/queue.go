// Package queue implements the Request Queue: five independently locked
// priority sub-queues plus a fixed-capacity ring that owns StreamRequest
// storage. Enqueue/PopNext never touch the Asset Reader or the pool;
// they only move request-ring indices between queues.
package queue

import (
	"sync"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// Priority orders the five request classes from most to least urgent.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Prefetch
	Low
	priorityCount
)

// Status is a StreamRequest's lifecycle state.
type Status int32

const (
	Pending Status = iota
	Loading
	Complete
	Failed
)

// Handle addresses a slot in the request ring. It stays valid only until
// the ring wraps back onto the same slot; callers that need to check a
// request's outcome must do so before that happens.
type Handle uint64

// Request is a single streaming request, stored by value in the ring.
type Request struct {
	AssetID  assetmodel.ID
	Type     uint32
	Priority Priority
	Lod      assetmodel.Lod
	Frame    uint64
	Status   Status

	// Callback, if set, is invoked by the scheduler once Status reaches
	// Complete or Failed.
	Callback func(h Handle, r *Request)

	// VTPage is an opaque back-reference the virtual-texture manager
	// attaches to page-fetch requests; the queue never interprets it.
	VTPage interface{}

	generation uint32
}

type ring struct {
	mu    sync.Mutex
	slots []Request
	gens  []uint32
	next  uint32
}

func newRing(capacity int) *ring {
	return &ring{
		slots: make([]Request, capacity),
		gens:  make([]uint32, capacity),
	}
}

// put stores r in the next ring slot, overwriting the oldest occupant if
// the ring is full, and returns a handle for it.
func (rg *ring) put(r Request) Handle {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	idx := rg.next % uint32(len(rg.slots))
	rg.next++
	rg.gens[idx]++
	r.generation = rg.gens[idx]
	rg.slots[idx] = r
	return Handle(idx)<<32 | Handle(r.generation)
}

func slotOf(h Handle) (idx uint32, gen uint32) {
	return uint32(h >> 32), uint32(h)
}

// Get returns the request at h if the ring has not wrapped past it since
// it was issued.
func (rg *ring) Get(h Handle) (*Request, bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	idx, gen := slotOf(h)
	if int(idx) >= len(rg.slots) || rg.gens[idx] != gen {
		return nil, false
	}
	cp := rg.slots[idx]
	return &cp, true
}

func (rg *ring) setStatus(idx uint32, gen uint32, status Status) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if rg.gens[idx] == gen {
		rg.slots[idx].Status = status
	}
}

type subQueue struct {
	mu    sync.Mutex
	items []Handle
}

func (q *subQueue) pushBack(h Handle) {
	q.mu.Lock()
	q.items = append(q.items, h)
	q.mu.Unlock()
}

func (q *subQueue) popFront() (Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	h := q.items[0]
	q.items = q.items[1:]
	return h, true
}

func (q *subQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Queue is the multi-priority request queue.
type Queue struct {
	ring    *ring
	classes [priorityCount]*subQueue
}

// defaultCapacity sizes the ring generously enough that wrap cannot
// happen within one second of worst-case throughput (the scheduler
// processes at most a few hundred requests per frame at 60 FPS).
const defaultCapacity = 65536

// New creates a queue with the default ring capacity.
func New() *Queue {
	return NewWithCapacity(defaultCapacity)
}

// NewWithCapacity creates a queue whose ring holds exactly capacity
// requests.
func NewWithCapacity(capacity int) *Queue {
	q := &Queue{ring: newRing(capacity)}
	for i := range q.classes {
		q.classes[i] = &subQueue{}
	}
	return q
}

// Enqueue stores req in the ring and appends its handle to the tail of
// req.Priority's sub-queue.
func (q *Queue) Enqueue(req Request) Handle {
	req.Status = Pending
	h := q.ring.put(req)
	q.classes[req.Priority].pushBack(h)
	return h
}

// PopNext returns the oldest request from the highest-priority non-empty
// sub-queue, or false if every class is empty. The returned Request is a
// snapshot; callers update status via SetStatus.
func (q *Queue) PopNext() (Handle, Request, bool) {
	for p := Priority(0); p < priorityCount; p++ {
		for {
			h, ok := q.classes[p].popFront()
			if !ok {
				break
			}
			if r, ok := q.ring.Get(h); ok {
				r.Status = Loading
				idx, gen := slotOf(h)
				q.ring.setStatus(idx, gen, Loading)
				return h, *r, true
			}
			// Handle was already overwritten by a ring wrap; drop it
			// and try the next entry.
		}
	}
	return 0, Request{}, false
}

// Get returns the current snapshot for h, if still valid.
func (q *Queue) Get(h Handle) (*Request, bool) {
	return q.ring.Get(h)
}

// SetStatus updates h's status in place, if the ring has not wrapped
// past it.
func (q *Queue) SetStatus(h Handle, status Status) {
	idx, gen := slotOf(h)
	q.ring.setStatus(idx, gen, status)
}

// Depths returns the current length of every priority sub-queue, ordered
// Critical..Low, for stats and state dumps.
func (q *Queue) Depths() [5]int {
	var d [5]int
	for p := Priority(0); p < priorityCount; p++ {
		d[p] = q.classes[p].len()
	}
	return d
}

package reader

import (
	"container/list"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

const (
	// maxOpenHandles bounds the file-handle cache.
	maxOpenHandles = 32
	// handleIdleFrames is how long an entry may sit unused before Sweep
	// closes it.
	handleIdleFrames = 3600
)

type handleEntry struct {
	id        assetmodel.ID
	f         *os.File
	lastFrame uint64
	elem      *list.Element
}

// LocalBackend reads assets from a local directory using positional
// reads, keeping an LRU-bounded cache of open file handles instead of
// opening a file per read.
type LocalBackend struct {
	root string

	mu      sync.Mutex
	handles map[assetmodel.ID]*handleEntry
	lru     *list.List // front = least recently used

	frame atomic.Uint64
}

// NewLocalBackend opens assets under root using the reference naming
// convention assets/streaming/{id:016x}.asset.
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{
		root:    root,
		handles: make(map[assetmodel.ID]*handleEntry),
		lru:     list.New(),
	}
}

// SetFrame records the current frame number, used both to timestamp
// handle accesses and as the basis for Sweep's idle threshold.
func (b *LocalBackend) SetFrame(frame uint64) {
	b.frame.Store(frame)
}

func (b *LocalBackend) openLocked(id assetmodel.ID) (*handleEntry, error) {
	if e, ok := b.handles[id]; ok {
		b.lru.MoveToBack(e.elem)
		e.lastFrame = b.frame.Load()
		return e, nil
	}

	if len(b.handles) >= maxOpenHandles {
		b.evictOneLocked()
	}

	path := filepath.Join(b.root, pathFor(id))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	e := &handleEntry{id: id, f: f, lastFrame: b.frame.Load()}
	e.elem = b.lru.PushBack(e)
	b.handles[id] = e
	return e, nil
}

func (b *LocalBackend) evictOneLocked() {
	front := b.lru.Front()
	if front == nil {
		return
	}
	e := front.Value.(*handleEntry)
	b.lru.Remove(front)
	delete(b.handles, e.id)
	e.f.Close()
}

// Sweep closes every handle that has not been touched within
// handleIdleFrames of the current frame. Intended to be called once per
// host update.
func (b *LocalBackend) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.frame.Load()
	elem := b.lru.Front()
	for elem != nil {
		next := elem.Next()
		e := elem.Value.(*handleEntry)
		if now-e.lastFrame < handleIdleFrames {
			break // list is ordered oldest-touched first within the idle window too
		}
		b.lru.Remove(elem)
		delete(b.handles, e.id)
		e.f.Close()
		elem = next
	}
}

// ReadAt satisfies Backend via a cached file handle and os.File.ReadAt.
func (b *LocalBackend) ReadAt(_ context.Context, id assetmodel.ID, offset int64, buf []byte) (int, error) {
	b.mu.Lock()
	e, err := b.openLocked(id)
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return e.f.ReadAt(buf, offset)
}

// Close closes every cached file handle.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, e := range b.handles {
		if err := e.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.handles = make(map[assetmodel.ID]*handleEntry)
	b.lru = list.New()
	return firstErr
}

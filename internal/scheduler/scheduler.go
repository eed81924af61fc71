// Package scheduler implements the Streaming Scheduler: a pool of worker
// goroutines that pop requests, trigger reads and decompression, install
// results into the resident table, and evict via LRU when over budget.
//
// The three conceptual thread groups (N workers, one async-I/O
// thread, two decompression threads, "may be fused into workers if the
// platform lacks overlap") are realized here as one worker pool plus two
// bounded semaphores: ioSem caps simultaneous in-flight reads at 64, and
// decompSem caps simultaneous decompressions at 2, rather than as
// separate goroutine pools — idiomatic Go favors bounding work with a
// semaphore over dedicating OS-thread-like pools for a platform that has
// no distinct async-I/O primitive to overlap against.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/pool"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/reader"
	"github.com/kestrel-engine/streamforge/internal/resident"
)

const (
	defaultWorkers        = 4
	maxInFlightReads      = 64
	maxInFlightDecompress = 2
	idleSleep             = time.Millisecond
)

// Counters are the engine's monotonically increasing totals; package
// stats exports them as Prometheus metrics.
type Counters struct {
	TotalRequests atomic.Int64
	Completed     atomic.Int64
	Failed        atomic.Int64
	CacheHits     atomic.Int64
	CacheMisses   atomic.Int64
	BytesLoaded   atomic.Int64
	BytesEvicted  atomic.Int64
}

// Scheduler owns the worker pool, the in-flight I/O and decompression
// budgets, and per-asset install serialization.
type Scheduler struct {
	Queue   *queue.Queue
	Table   *resident.Table
	Pool    *pool.Pool
	Backend reader.Backend

	Counters Counters

	// LoadTimeObserver, if set, is called with the wall-clock duration of
	// every successful load-path request (fast-path hits are excluded),
	// for the average/peak load time stat.
	LoadTimeObserver func(time.Duration)

	// HeaderObserver, if set, is called with every successfully parsed
	// asset header, for the optional durable catalog.
	HeaderObserver func(*assetmodel.Header)

	workerCount int
	limiter     *rate.Limiter
	ioSem       chan struct{}
	decompSem   chan struct{}

	assetLocks sync.Map // assetmodel.ID -> *sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithWorkerCount overrides the default of 4 worker goroutines.
func WithWorkerCount(n int) Option {
	return func(s *Scheduler) { s.workerCount = n }
}

// WithIOBytesPerSec rate-limits backend reads; 0 (the default) is
// unbounded.
func WithIOBytesPerSec(bytesPerSec int) Option {
	return func(s *Scheduler) {
		if bytesPerSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
		}
	}
}

// New creates a Scheduler over the given queue, resident table, memory
// pool, and asset backend.
func New(q *queue.Queue, table *resident.Table, p *pool.Pool, backend reader.Backend, opts ...Option) *Scheduler {
	s := &Scheduler{
		Queue:       q,
		Table:       table,
		Pool:        p,
		Backend:     backend,
		workerCount: defaultWorkers,
		ioSem:       make(chan struct{}, maxInFlightReads),
		decompSem:   make(chan struct{}, maxInFlightDecompress),
		stopCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the worker pool. Each worker loops popping requests
// until Stop is called; an empty queue yields a short sleep rather than a
// busy spin.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}
}

// Stop signals every worker to exit after its current request and waits
// for them to drain.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		h, req, ok := s.Queue.PopNext()
		if !ok {
			time.Sleep(idleSleep)
			continue
		}
		s.process(ctx, h, req)
	}
}

func (s *Scheduler) lockFor(id assetmodel.ID) *sync.Mutex {
	v, _ := s.assetLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// process runs one request through the fast path or the full load path.
// Locking per asset id ensures no asset is ever loaded by two workers
// concurrently.
func (s *Scheduler) process(ctx context.Context, h queue.Handle, req queue.Request) {
	s.Counters.TotalRequests.Add(1)

	lock := s.lockFor(req.AssetID)
	lock.Lock()
	defer lock.Unlock()

	rec, isResident := s.Table.Lookup(req.AssetID)
	if isResident {
		s.Table.Touch(req.AssetID, req.Frame)
		if rec.CurrentLod <= req.Lod {
			s.complete(h, req)
			s.Counters.CacheHits.Add(1)
			return
		}
	}
	s.Counters.CacheMisses.Add(1)
	loadStart := time.Now()

	header, err := reader.ReadHeader(ctx, s.Backend, req.AssetID)
	if err != nil {
		s.fail(h, req)
		return
	}
	if s.HeaderObserver != nil {
		s.HeaderObserver(header)
	}

	lod := header.ClampLod(req.Lod)
	size := int64(header.Lods[lod].DataSize)

	dstHandle, err := s.allocWithEviction(size)
	if err != nil {
		s.fail(h, req)
		return
	}

	// The read and decompression land in worker-private memory, never a
	// resolved arena slice: the host may run Pool.Defragment concurrently
	// with this I/O, relocating the allocation behind dstHandle. The
	// finished bytes are copied into the pool with Write, which holds the
	// pool lock for the duration of the copy.
	buf := make([]byte, size)

	s.ioSem <- struct{}{}
	if s.limiter != nil {
		_ = s.limiter.WaitN(ctx, int(header.Lods[lod].CompressedSize))
	}
	if header.Lods[lod].Compression != assetmodel.CompressionNone {
		s.decompSem <- struct{}{}
	}
	n, err := reader.ReadLod(ctx, s.Backend, header, lod, buf)
	if header.Lods[lod].Compression != assetmodel.CompressionNone {
		<-s.decompSem
	}
	<-s.ioSem

	if err != nil {
		s.Pool.Free(dstHandle)
		s.fail(h, req)
		return
	}
	if !s.Pool.Write(dstHandle, buf[:n]) {
		s.Pool.Free(dstHandle)
		s.fail(h, req)
		return
	}

	s.install(req.AssetID, header.Type, lod, dstHandle, int64(n), rec, isResident)
	s.complete(h, req)
	s.Counters.Completed.Add(1)
	s.Counters.BytesLoaded.Add(int64(n))
	if s.LoadTimeObserver != nil {
		s.LoadTimeObserver(time.Since(loadStart))
	}
}

func (s *Scheduler) allocWithEviction(size int64) (pool.Handle, error) {
	h, err := s.Pool.Alloc(size)
	if err == nil {
		return h, nil
	}
	freed := s.Table.EvictLRU(size)
	s.Counters.BytesEvicted.Add(freed)
	return s.Pool.Alloc(size)
}

func (s *Scheduler) install(id assetmodel.ID, typ uint32, lod assetmodel.Lod, h pool.Handle, size int64, rec *resident.Record, existed bool) {
	if !existed {
		rec = &resident.Record{AssetID: id, Type: typ}
	}

	old := rec.Lods[lod]
	rec.Lods[lod] = resident.LodBuffer{Handle: h, Size: size}
	rec.CurrentLod = lod
	rec.AggregateSize += size - old.Size

	if !existed {
		s.Table.Insert(rec)
	}
	if old.Handle != 0 {
		s.Pool.Free(old.Handle)
	}
}

func (s *Scheduler) complete(h queue.Handle, req queue.Request) {
	s.Queue.SetStatus(h, queue.Complete)
	req.Status = queue.Complete
	if req.Callback != nil {
		req.Callback(h, &req)
	}
}

func (s *Scheduler) fail(h queue.Handle, req queue.Request) {
	s.Queue.SetStatus(h, queue.Failed)
	req.Status = queue.Failed
	s.Counters.Failed.Add(1)
	if req.Callback != nil {
		req.Callback(h, &req)
	}
}

// Package stats implements Stats & Introspection: the
// monotonically increasing counters, current/peak memory usage,
// average/peak load time, a textual dump_state snapshot, and a
// Prometheus exporter.
package stats

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kestrel-engine/streamforge/internal/pool"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/resident"
	"github.com/kestrel-engine/streamforge/internal/scheduler"
)

// Operational alert thresholds: informational, not errors, logged when
// a sampling window falls below them.
const (
	SuccessRateAlertThreshold  = 0.95
	CacheHitRateAlertThreshold = 0.70
)

// Collector aggregates every engine subsystem's counters into the single
// textual/Prometheus introspection surface.
type Collector struct {
	sched *scheduler.Scheduler
	pl    *pool.Pool
	q     *queue.Queue
	table *resident.Table

	peakMemory    atomic.Int64
	loadCount     atomic.Int64
	loadNanosSum  atomic.Int64
	loadNanosPeak atomic.Int64

	registry *prometheus.Registry
	metrics  *prometheusMetrics

	counterMu        sync.Mutex
	counterHighWater map[prometheus.Counter]int64
}

// Registry returns the Collector's own Prometheus registry (not the
// global default one), so an embedding process can mount it at /metrics
// without colliding with unrelated metrics, and so multiple
// engines/tests can coexist in one process.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

type prometheusMetrics struct {
	requestsTotal  prometheus.Counter
	completedTotal prometheus.Counter
	failedTotal    prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	bytesLoaded    prometheus.Counter
	bytesEvicted   prometheus.Counter

	memoryUsed    prometheus.Gauge
	memoryPeak    prometheus.Gauge
	fragmentation prometheus.Gauge
	residentCount prometheus.Gauge

	loadDuration prometheus.Histogram
}

// New creates a Collector over the engine's live subsystems and wires its
// load-time histogram into the scheduler's LoadTimeObserver hook. Metrics
// are registered once, under the "streamforge"/"engine" namespace.
func New(sched *scheduler.Scheduler, pl *pool.Pool, q *queue.Queue, table *resident.Table) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		sched:            sched,
		pl:               pl,
		q:                q,
		table:            table,
		registry:         reg,
		metrics:          newPrometheusMetrics(reg),
		counterHighWater: make(map[prometheus.Counter]int64),
	}
	sched.LoadTimeObserver = c.RecordLoadTime
	return c
}

func newPrometheusMetrics(reg *prometheus.Registry) *prometheusMetrics {
	const namespace = "streamforge"
	const subsystem = "engine"
	factory := promauto.With(reg)

	return &prometheusMetrics{
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "requests_total", Help: "Total streaming requests submitted.",
		}),
		completedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "requests_completed_total", Help: "Requests that completed successfully.",
		}),
		failedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "requests_failed_total", Help: "Requests that failed.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_hits_total", Help: "Requests served from the resident table without a load.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_misses_total", Help: "Requests that required a load-path fetch.",
		}),
		bytesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_loaded_total", Help: "Total decompressed bytes installed into the resident table.",
		}),
		bytesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_evicted_total", Help: "Total bytes freed by LRU eviction.",
		}),
		memoryUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "memory_used_bytes", Help: "Current memory pool usage in bytes.",
		}),
		memoryPeak: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "memory_peak_bytes", Help: "Peak memory pool usage observed in bytes.",
		}),
		fragmentation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "memory_fragmentation_ratio", Help: "Memory pool fragmentation estimate in [0,1].",
		}),
		residentCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "resident_assets", Help: "Number of currently resident assets.",
		}),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "load_duration_seconds", Help: "Wall-clock duration of load-path requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordLoadTime folds one load-path duration into the running
// average/peak and the Prometheus histogram. It is safe to call
// concurrently from every scheduler worker.
func (c *Collector) RecordLoadTime(d time.Duration) {
	c.loadCount.Add(1)
	c.loadNanosSum.Add(int64(d))
	for {
		cur := c.loadNanosPeak.Load()
		if int64(d) <= cur || c.loadNanosPeak.CompareAndSwap(cur, int64(d)) {
			break
		}
	}
	c.metrics.loadDuration.Observe(d.Seconds())
}

// Snapshot is the point-in-time counters/memory/load-time view returned
// to the host.
type Snapshot struct {
	TotalRequests int64
	Completed     int64
	Failed        int64
	CacheHits     int64
	CacheMisses   int64
	BytesLoaded   int64
	BytesEvicted  int64

	CurrentMemoryUsage int64
	PeakMemoryUsage    int64
	Fragmentation      float64

	AverageLoadTime time.Duration
	PeakLoadTime    time.Duration

	ResidentAssets int
	QueueDepths    [5]int
}

// Snapshot reads every counter and gauge without blocking on the pool or
// table locks any longer than a single Stats()/Count() call each;
// request status and counters are plain atomics and need no lock to
// read.
func (c *Collector) Snapshot() Snapshot {
	cnt := &c.sched.Counters
	poolStats := c.pl.Stats()

	for {
		cur := c.peakMemory.Load()
		if poolStats.Used <= cur || c.peakMemory.CompareAndSwap(cur, poolStats.Used) {
			break
		}
	}
	peak := c.peakMemory.Load()

	var avg time.Duration
	if n := c.loadCount.Load(); n > 0 {
		avg = time.Duration(c.loadNanosSum.Load() / n)
	}

	c.syncPrometheus(cnt, poolStats, peak)

	return Snapshot{
		TotalRequests:      cnt.TotalRequests.Load(),
		Completed:          cnt.Completed.Load(),
		Failed:             cnt.Failed.Load(),
		CacheHits:          cnt.CacheHits.Load(),
		CacheMisses:        cnt.CacheMisses.Load(),
		BytesLoaded:        cnt.BytesLoaded.Load(),
		BytesEvicted:       cnt.BytesEvicted.Load(),
		CurrentMemoryUsage: poolStats.Used,
		PeakMemoryUsage:    peak,
		Fragmentation:      poolStats.Fragmentation,
		AverageLoadTime:    avg,
		PeakLoadTime:       time.Duration(c.loadNanosPeak.Load()),
		ResidentAssets:     c.table.Count(),
		QueueDepths:        c.q.Depths(),
	}
}

func (c *Collector) syncPrometheus(cnt *scheduler.Counters, poolStats pool.Stats, peak int64) {
	m := c.metrics
	c.setCounterTo(m.requestsTotal, cnt.TotalRequests.Load())
	c.setCounterTo(m.completedTotal, cnt.Completed.Load())
	c.setCounterTo(m.failedTotal, cnt.Failed.Load())
	c.setCounterTo(m.cacheHits, cnt.CacheHits.Load())
	c.setCounterTo(m.cacheMisses, cnt.CacheMisses.Load())
	c.setCounterTo(m.bytesLoaded, cnt.BytesLoaded.Load())
	c.setCounterTo(m.bytesEvicted, cnt.BytesEvicted.Load())

	m.memoryUsed.Set(float64(poolStats.Used))
	m.memoryPeak.Set(float64(peak))
	m.fragmentation.Set(poolStats.Fragmentation)
	m.residentCount.Set(float64(c.table.Count()))
}

// setCounterTo advances counter by the delta since the last call, since
// prometheus.Counter only exposes Add/Inc, not Set, while the engine's
// own atomic counters are absolute values.
func (c *Collector) setCounterTo(counter prometheus.Counter, absolute int64) {
	c.counterMu.Lock()
	defer c.counterMu.Unlock()
	prev := c.counterHighWater[counter]
	if absolute > prev {
		counter.Add(float64(absolute - prev))
		c.counterHighWater[counter] = absolute
	}
}

// Reset zeroes the average/peak load-time accumulators. The underlying
// scheduler counters are monotonic and are intentionally not reset.
func (c *Collector) Reset() {
	c.loadCount.Store(0)
	c.loadNanosSum.Store(0)
	c.loadNanosPeak.Store(0)
}

// DumpState writes a textual snapshot of counters, memory, resident-asset
// summary, and queue depths to path.
func (c *Collector) DumpState(path string) error {
	snap := c.Snapshot()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stats: dump_state: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, `streamforge engine state dump
requests:       total=%d completed=%d failed=%d
cache:          hits=%d misses=%d
bytes:          loaded=%d evicted=%d
memory:         used=%d peak=%d fragmentation=%.3f
load time:      avg=%s peak=%s
resident assets: %d
queue depths:   critical=%d high=%d normal=%d prefetch=%d low=%d
`,
		snap.TotalRequests, snap.Completed, snap.Failed,
		snap.CacheHits, snap.CacheMisses,
		snap.BytesLoaded, snap.BytesEvicted,
		snap.CurrentMemoryUsage, snap.PeakMemoryUsage, snap.Fragmentation,
		snap.AverageLoadTime, snap.PeakLoadTime,
		snap.ResidentAssets,
		snap.QueueDepths[0], snap.QueueDepths[1], snap.QueueDepths[2], snap.QueueDepths[3], snap.QueueDepths[4],
	)
	return err
}

// SuccessRate returns completed/(completed+failed) as a window-agnostic
// ratio, used by the operational alert check.
func (s Snapshot) SuccessRate() float64 {
	total := s.Completed + s.Failed
	if total == 0 {
		return 1
	}
	return float64(s.Completed) / float64(total)
}

// CacheHitRate returns hits/(hits+misses), used by the operational
// alert check.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 1
	}
	return float64(s.CacheHits) / float64(total)
}

// Package catalog implements the optional durable asset catalog: a
// record of every asset header the engine has ever parsed, plus periodic
// stats snapshots, so a host tool can query "what's in this world"
// without re-opening every .asset file.
//
// The live engine only ever writes through a Catalog asynchronously and
// never blocks a request on it.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// Catalog records asset metadata observed by the engine. All methods must
// be safe to call from every scheduler worker concurrently and must never
// block the streaming hot path on a slow store; callers should treat
// catalog errors as logged, not fatal.
type Catalog interface {
	RecordHeader(ctx context.Context, h *assetmodel.Header) error
	RecordSnapshot(ctx context.Context, s Snapshot) error
	Close() error
}

// Snapshot is the subset of stats.Snapshot worth persisting periodically;
// it is duplicated here (rather than importing package stats) so catalog
// has no dependency on the scheduler/pool/queue/resident stack it merely
// archives data about.
type Snapshot struct {
	TakenAt            time.Time
	TotalRequests      int64
	Completed          int64
	Failed             int64
	CacheHits          int64
	CacheMisses        int64
	BytesLoaded        int64
	BytesEvicted       int64
	CurrentMemoryUsage int64
	PeakMemoryUsage    int64
	ResidentAssetCount int
}

// NoopCatalog discards everything; used when no DSN is configured.
type NoopCatalog struct{}

func (NoopCatalog) RecordHeader(context.Context, *assetmodel.Header) error { return nil }
func (NoopCatalog) RecordSnapshot(context.Context, Snapshot) error         { return nil }
func (NoopCatalog) Close() error                                          { return nil }

// SQLCatalog persists headers and stats snapshots to Postgres via sqlx +
// lib/pq.
type SQLCatalog struct {
	db *sqlx.DB
}

// Open connects to dsn and ensures the catalog schema exists. Pass an
// empty dsn to get a NoopCatalog instead.
func Open(dsn string) (Catalog, error) {
	if dsn == "" {
		return NoopCatalog{}, nil
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	c := &SQLCatalog{db: db}
	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLCatalog) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS streamforge_assets (
			asset_id     BIGINT PRIMARY KEY,
			type         INTEGER NOT NULL,
			name         TEXT NOT NULL,
			lod_count    INTEGER NOT NULL,
			dependencies BIGINT[] NOT NULL,
			checksum     BIGINT NOT NULL,
			first_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS streamforge_stats_snapshots (
			taken_at             TIMESTAMPTZ PRIMARY KEY,
			total_requests       BIGINT NOT NULL,
			completed            BIGINT NOT NULL,
			failed               BIGINT NOT NULL,
			cache_hits           BIGINT NOT NULL,
			cache_misses         BIGINT NOT NULL,
			bytes_loaded         BIGINT NOT NULL,
			bytes_evicted        BIGINT NOT NULL,
			current_memory_usage BIGINT NOT NULL,
			peak_memory_usage    BIGINT NOT NULL,
			resident_asset_count INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("catalog: ensure schema: %w", err)
	}
	return nil
}

// RecordHeader upserts an asset's parsed header metadata.
func (c *SQLCatalog) RecordHeader(ctx context.Context, h *assetmodel.Header) error {
	deps := make([]int64, len(h.Dependencies))
	for i, d := range h.Dependencies {
		deps[i] = int64(d)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO streamforge_assets (asset_id, type, name, lod_count, dependencies, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			lod_count = EXCLUDED.lod_count,
			dependencies = EXCLUDED.dependencies,
			checksum = EXCLUDED.checksum,
			last_seen = NOW()
	`, int64(h.AssetID), h.Type, h.Name, len(h.Lods), pqInt64Array(deps), h.Checksum)
	if err != nil {
		return fmt.Errorf("catalog: record header %#x: %w", uint64(h.AssetID), err)
	}
	return nil
}

// RecordSnapshot appends a stats snapshot row.
func (c *SQLCatalog) RecordSnapshot(ctx context.Context, s Snapshot) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO streamforge_stats_snapshots (
			taken_at, total_requests, completed, failed, cache_hits, cache_misses,
			bytes_loaded, bytes_evicted, current_memory_usage, peak_memory_usage, resident_asset_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (taken_at) DO NOTHING
	`, s.TakenAt, s.TotalRequests, s.Completed, s.Failed, s.CacheHits, s.CacheMisses,
		s.BytesLoaded, s.BytesEvicted, s.CurrentMemoryUsage, s.PeakMemoryUsage, s.ResidentAssetCount)
	if err != nil {
		return fmt.Errorf("catalog: record snapshot: %w", err)
	}
	return nil
}

func (c *SQLCatalog) Close() error { return c.db.Close() }

// pqInt64Array renders a Postgres bigint[] literal without pulling in
// lib/pq's Array helper's reflection path for this one fixed-width case.
func pqInt64Array(vals []int64) string {
	s := "{"
	for i, v := range vals {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", v)
	}
	return s + "}"
}

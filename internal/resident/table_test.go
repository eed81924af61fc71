package resident

import (
	"testing"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/pool"
)

func newRecord(p *pool.Pool, id assetmodel.ID, size int64) *Record {
	h, err := p.Alloc(size)
	if err != nil {
		panic(err)
	}
	r := &Record{AssetID: id, AggregateSize: size}
	r.Lods[0] = LodBuffer{Handle: h, Size: size}
	return r
}

func TestInsertLookupTouch(t *testing.T) {
	p := pool.New(1 << 20)
	tbl := NewTable(p)
	r := newRecord(p, 0x1234, 1024)
	tbl.Insert(r)

	got, ok := tbl.Lookup(0x1234)
	if !ok || got.AssetID != 0x1234 {
		t.Fatalf("Lookup failed: %v %v", got, ok)
	}

	touched, ok := tbl.Touch(0x1234, 42)
	if !ok || touched.LastAccessFrame != 42 {
		t.Fatalf("Touch failed: %v %v", touched, ok)
	}
}

func TestEvictLRUSkipsLockedAssets(t *testing.T) {
	p := pool.New(1 << 20)
	tbl := NewTable(p)

	locked := newRecord(p, 1, 4096)
	Lock(locked)
	tbl.Insert(locked)

	evictable := newRecord(p, 2, 4096)
	tbl.Insert(evictable)

	freed := tbl.EvictLRU(4096)
	if freed != 4096 {
		t.Fatalf("freed = %d, want 4096", freed)
	}
	if _, ok := tbl.Lookup(1); !ok {
		t.Fatal("locked asset was evicted")
	}
	if _, ok := tbl.Lookup(2); ok {
		t.Fatal("evictable asset was not evicted")
	}
}

func TestEvictLRUOrderOldestFirst(t *testing.T) {
	p := pool.New(1 << 20)
	tbl := NewTable(p)

	for i := assetmodel.ID(1); i <= 3; i++ {
		tbl.Insert(newRecord(p, i, 1024))
	}
	// Touch 1, making 2 the least recently used.
	tbl.Touch(1, 0)

	tbl.EvictLRU(1024)
	if _, ok := tbl.Lookup(2); ok {
		t.Fatal("expected asset 2 (least recently used) to be evicted first")
	}
	if _, ok := tbl.Lookup(1); !ok {
		t.Fatal("asset 1 should remain resident")
	}
}

func TestRemoveDoesNotFreePool(t *testing.T) {
	p := pool.New(1 << 20)
	tbl := NewTable(p)
	r := newRecord(p, 5, 256)
	tbl.Insert(r)
	tbl.Remove(5)

	if _, ok := p.Resolve(r.Lods[0].Handle); !ok {
		t.Fatal("Remove should not free pool allocations")
	}
}

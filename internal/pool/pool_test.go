package pool

import "testing"

func TestAllocFreeBasic(t *testing.T) {
	p := New(1024)
	h, err := p.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	buf, ok := p.Resolve(h)
	if !ok || len(buf) != 112 { // rounded up to 16
		t.Fatalf("Resolve: ok=%v len=%d", ok, len(buf))
	}
	stats := p.Stats()
	if stats.Used != 112 {
		t.Fatalf("Used = %d, want 112", stats.Used)
	}
	p.Free(h)
	if _, ok := p.Resolve(h); ok {
		t.Fatal("expected handle to be invalid after Free")
	}
	stats = p.Stats()
	if stats.Used != 0 {
		t.Fatalf("Used after free = %d, want 0", stats.Used)
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	p := New(64)
	if _, err := p.Alloc(128); err != ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}

func TestCoalesceAdjacentFreeBlocks(t *testing.T) {
	p := New(4096)
	a, _ := p.Alloc(256)
	b, _ := p.Alloc(256)
	c, _ := p.Alloc(256)
	_ = c

	p.Free(a)
	p.Free(b)

	// a and b should have coalesced into one free block of 512 bytes,
	// so a 400-byte allocation should reuse it rather than growing tail.
	before := p.Stats()
	h, err := p.Alloc(400)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	after := p.Stats()
	if after.FreeTail != before.FreeTail {
		t.Fatalf("allocation unexpectedly grew the tail")
	}
	buf, ok := p.Resolve(h)
	if !ok || len(buf) < 400 {
		t.Fatalf("Resolve after coalesce: ok=%v len=%d", ok, len(buf))
	}
}

func TestDefragmentCompactsAndPreservesBytes(t *testing.T) {
	p := New(4096)
	handles := make([]Handle, 0, 5)
	for i := 0; i < 5; i++ {
		h, err := p.Alloc(128)
		if err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
		buf, _ := p.Resolve(h)
		for j := range buf {
			buf[j] = byte(i)
		}
		handles = append(handles, h)
	}

	// Free every other allocation to fragment the arena.
	p.Free(handles[0])
	p.Free(handles[2])

	p.Defragment()

	stats := p.Stats()
	if stats.FreeScattered != 0 {
		t.Fatalf("FreeScattered after defragment = %d, want 0", stats.FreeScattered)
	}

	for _, i := range []int{1, 3, 4} {
		buf, ok := p.Resolve(handles[i])
		if !ok {
			t.Fatalf("handle %d missing after defragment", i)
		}
		for j, v := range buf {
			if v != byte(i) {
				t.Fatalf("handle %d byte %d = %d, want %d", i, j, v, i)
			}
		}
	}
}

func TestAllocSplitsOversizedBlock(t *testing.T) {
	p := New(4096)
	h1, _ := p.Alloc(2000)
	p.Free(h1)

	// Requesting far less than the freed block should split it, leaving
	// a usable remainder rather than consuming the whole 2000 bytes.
	h2, err := p.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if size := p.Size(h2); size >= 2000 {
		t.Fatalf("expected split allocation, got size %d", size)
	}
}

func TestWriteCopiesIntoAllocation(t *testing.T) {
	p := New(1024)
	h, err := p.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	src := []byte("written through the pool lock")
	if !p.Write(h, src) {
		t.Fatal("Write refused a fitting copy into a live handle")
	}
	buf, ok := p.Resolve(h)
	if !ok || string(buf[:len(src)]) != string(src) {
		t.Fatalf("Resolve after Write: ok=%v got %q", ok, buf[:len(src)])
	}

	if p.Write(h, make([]byte, 64)) {
		t.Fatal("Write accepted a copy larger than the allocation")
	}
	p.Free(h)
	if p.Write(h, src) {
		t.Fatal("Write accepted a freed handle")
	}
}

func TestWriteFollowsDefragmentedHandle(t *testing.T) {
	p := New(4096)
	a, _ := p.Alloc(512)
	b, _ := p.Alloc(512)
	p.Free(a) // leave a hole so b relocates

	p.Defragment()

	src := []byte("lands at the relocated offset")
	if !p.Write(b, src) {
		t.Fatal("Write failed on a defragmented handle")
	}
	buf, ok := p.Resolve(b)
	if !ok || string(buf[:len(src)]) != string(src) {
		t.Fatalf("bytes not at relocated allocation: ok=%v got %q", ok, buf[:len(src)])
	}
	stats := p.Stats()
	if stats.FreeScattered != 0 {
		t.Fatalf("free list not collapsed after Defragment: %+v", stats)
	}
}

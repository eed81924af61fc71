package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/codec"
)

func writeFixture(t *testing.T, dir string, id assetmodel.ID, payload []byte, method assetmodel.CompressionMethod) *assetmodel.Header {
	t.Helper()

	coder, err := codec.For(method)
	if err != nil {
		t.Fatalf("codec.For: %v", err)
	}
	compressed := payload
	if method != assetmodel.CompressionNone {
		compressed = coder.Encode(payload)
	}

	h := &assetmodel.Header{
		Version:          1,
		AssetID:          id,
		Type:             7,
		Compression:      method,
		UncompressedSize: uint64(len(payload)),
		CompressedSize:   uint64(len(compressed)),
		Lods: []assetmodel.LodEntry{
			{DataOffset: 0, DataSize: uint32(len(payload)), CompressedSize: uint32(len(compressed)), Compression: method},
		},
		Name: "fixture",
	}

	path := filepath.Join(dir, pathFor(id))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := assetmodel.WriteHeader(f, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := f.Write(compressed); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	reread, err := assetmodel.ReadHeader(func() *os.File {
		rf, _ := os.Open(path)
		t.Cleanup(func() { rf.Close() })
		return rf
	}())
	if err != nil {
		t.Fatalf("ReadHeader (fixture verification): %v", err)
	}
	return reread
}

func TestLocalBackendReadHeaderAndLod(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("streaming asset payload bytes, repeated repeated repeated")
	writeFixture(t, dir, 0xABCD, payload, assetmodel.CompressionNone)

	backend := NewLocalBackend(dir)
	defer backend.Close()

	h, err := ReadHeader(context.Background(), backend, 0xABCD)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.AssetID != 0xABCD || len(h.Lods) != 1 {
		t.Fatalf("unexpected header: %+v", h)
	}

	dst := make([]byte, h.Lods[0].DataSize)
	n, err := ReadLod(context.Background(), backend, h, 0, dst)
	if err != nil {
		t.Fatalf("ReadLod: %v", err)
	}
	if string(dst[:n]) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", dst[:n], payload)
	}
}

func TestLocalBackendReadLodDecompressesLZ(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	writeFixture(t, dir, 42, payload, assetmodel.CompressionLZ4)

	backend := NewLocalBackend(dir)
	defer backend.Close()

	h, err := ReadHeader(context.Background(), backend, 42)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	dst := make([]byte, h.Lods[0].DataSize)
	n, err := ReadLod(context.Background(), backend, h, 0, dst)
	if err != nil {
		t.Fatalf("ReadLod: %v", err)
	}
	if string(dst[:n]) != string(payload) {
		t.Fatalf("payload mismatch after LZ decode: got %d bytes", n)
	}
}

func TestLocalBackendReadHeaderMismatchedID(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 1, []byte("x"), assetmodel.CompressionNone)

	// Copy asset 1's bytes to where asset 2 would be looked up, so the
	// parsed header's embedded asset_id (1) mismatches the requested id (2).
	src := filepath.Join(dir, pathFor(1))
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	dstPath := filepath.Join(dir, pathFor(2))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	backend := NewLocalBackend(dir)
	defer backend.Close()
	if _, err := ReadHeader(context.Background(), backend, 2); err == nil {
		t.Fatal("expected mismatched asset_id to be rejected")
	}
}

func TestLocalBackendHandleCacheEviction(t *testing.T) {
	dir := t.TempDir()
	for i := assetmodel.ID(0); i < maxOpenHandles+5; i++ {
		writeFixture(t, dir, i, []byte("p"), assetmodel.CompressionNone)
	}

	backend := NewLocalBackend(dir)
	defer backend.Close()

	for i := assetmodel.ID(0); i < maxOpenHandles+5; i++ {
		if _, err := ReadHeader(context.Background(), backend, i); err != nil {
			t.Fatalf("ReadHeader(%d): %v", i, err)
		}
	}
	if len(backend.handles) > maxOpenHandles {
		t.Fatalf("handle cache grew beyond cap: %d", len(backend.handles))
	}
}

func TestLocalBackendSweepClosesIdleHandles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 99, []byte("p"), assetmodel.CompressionNone)

	backend := NewLocalBackend(dir)
	defer backend.Close()

	backend.SetFrame(0)
	if _, err := ReadHeader(context.Background(), backend, 99); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if len(backend.handles) != 1 {
		t.Fatalf("expected 1 open handle, got %d", len(backend.handles))
	}

	backend.SetFrame(handleIdleFrames + 1)
	backend.Sweep()
	if len(backend.handles) != 0 {
		t.Fatalf("expected Sweep to close idle handle, got %d open", len(backend.handles))
	}
}

func TestReadLodRejectsShortDecompression(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	h := writeFixture(t, dir, 77, payload, assetmodel.CompressionLZ4)

	backend := NewLocalBackend(dir)
	defer backend.Close()

	// Claim a larger decompressed size than the block actually yields.
	h.Lods[0].DataSize = uint32(len(payload)) + 16

	dst := make([]byte, h.Lods[0].DataSize)
	_, err := ReadLod(context.Background(), backend, h, 0, dst)
	if !errors.Is(err, assetmodel.ErrCompression) {
		t.Fatalf("ReadLod = %v, want ErrCompression for short decompression", err)
	}
}

func TestReadLodRejectsTruncatedUncompressed(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("uncompressed payload")
	h := writeFixture(t, dir, 78, payload, assetmodel.CompressionNone)

	backend := NewLocalBackend(dir)
	defer backend.Close()

	// Claim more bytes than the file holds past the header.
	h.Lods[0].DataSize = uint32(len(payload)) + 64
	h.Lods[0].CompressedSize = h.Lods[0].DataSize

	dst := make([]byte, h.Lods[0].DataSize)
	_, err := ReadLod(context.Background(), backend, h, 0, dst)
	if !errors.Is(err, assetmodel.ErrReadTruncated) {
		t.Fatalf("ReadLod = %v, want ErrReadTruncated for short read", err)
	}
}

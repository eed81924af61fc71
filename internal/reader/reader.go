package reader

import (
	"context"
	"fmt"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/codec"
)

// backendReaderAt adapts a Backend + asset id into an io.Reader that
// ReadHeader can consume, by tracking a running offset.
type backendReaderAt struct {
	ctx     context.Context
	backend Backend
	id      assetmodel.ID
	offset  int64
}

func (r *backendReaderAt) Read(p []byte) (int, error) {
	n, err := r.backend.ReadAt(r.ctx, r.id, r.offset, p)
	r.offset += int64(n)
	return n, err
}

// ReadHeader fetches and parses the asset header for id via backend.
func ReadHeader(ctx context.Context, backend Backend, id assetmodel.ID) (*assetmodel.Header, error) {
	h, err := assetmodel.ReadHeader(&backendReaderAt{ctx: ctx, backend: backend, id: id})
	if err != nil {
		return nil, err
	}
	if h.AssetID != id {
		return nil, fmt.Errorf("%w: header asset_id %#x does not match requested %#x", assetmodel.ErrHeaderInvalid, h.AssetID, id)
	}
	return h, nil
}

// ReadLod fetches LOD lod's payload for id, decompressing it into dst.
// dst must be at least h.Lods[lod].DataSize bytes. It returns the number
// of decompressed bytes written.
func ReadLod(ctx context.Context, backend Backend, h *assetmodel.Header, lod assetmodel.Lod, dst []byte) (int, error) {
	start, end, err := h.LodDataRange(lod)
	if err != nil {
		return 0, err
	}
	entry := h.Lods[lod]
	method := entry.Compression

	if method == assetmodel.CompressionNone {
		n, err := backend.ReadAt(ctx, h.AssetID, start, dst[:entry.DataSize])
		if err != nil {
			return n, fmt.Errorf("%w: %v", assetmodel.ErrReadTruncated, err)
		}
		if n != int(entry.DataSize) {
			return n, fmt.Errorf("%w: read %d of %d bytes", assetmodel.ErrReadTruncated, n, entry.DataSize)
		}
		return n, nil
	}

	scratch := make([]byte, end-start)
	rn, err := backend.ReadAt(ctx, h.AssetID, start, scratch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", assetmodel.ErrReadTruncated, err)
	}
	if rn != len(scratch) {
		return 0, fmt.Errorf("%w: read %d of %d compressed bytes", assetmodel.ErrReadTruncated, rn, len(scratch))
	}

	coder, err := codec.For(method)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", assetmodel.ErrCompression, err)
	}
	n, err := coder.Decode(dst, scratch)
	if err != nil {
		return n, fmt.Errorf("%w: %v", assetmodel.ErrCompression, err)
	}
	if n != int(entry.DataSize) {
		return n, fmt.Errorf("%w: decompressed %d bytes, want %d", assetmodel.ErrCompression, n, entry.DataSize)
	}
	return n, nil
}

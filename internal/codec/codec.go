// Package codec implements the engine's block decompressors: an identity
// passthrough, an LZ4-style LZ77 codec, and a run-length fallback.
// All coders are stateless and safe for concurrent use by
// multiple decompression workers.
package codec

import (
	"errors"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// ErrCorrupt is returned when a compressed block's token stream cannot be
// decoded (truncated match, out-of-range back-reference).
var ErrCorrupt = errors.New("codec: corrupt compressed block")

// Coder encodes and decodes a single asset LOD block.
type Coder interface {
	Decode(dst, src []byte) (int, error)
	Encode(src []byte) []byte
}

// For selects the coder for a compression method. An unknown method
// yields an error at call sites rather than a silent passthrough.
func For(method assetmodel.CompressionMethod) (Coder, error) {
	switch method {
	case assetmodel.CompressionNone:
		return Identity{}, nil
	case assetmodel.CompressionLZ4:
		return LZ{}, nil
	case assetmodel.CompressionRLE, assetmodel.CompressionZSTD:
		// ZSTD is accepted on read and mapped to RLE.
		return RLE{}, nil
	default:
		return nil, errors.New("codec: unsupported compression method")
	}
}

// Identity is the no-op coder used for uncompressed LODs.
type Identity struct{}

func (Identity) Decode(dst, src []byte) (int, error) {
	n := copy(dst, src)
	return n, nil
}

func (Identity) Encode(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// Package assetmodel defines the wire-level asset types shared by every
// streaming engine component: the opaque asset identifier, LOD index, and
// the bit-exact HMAS header format.
package assetmodel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ID is a 64-bit opaque asset identifier.
type ID uint64

// Lod is a level-of-detail index; 0 is highest quality.
type Lod int

// MaxLods is the number of LOD tiers the format supports.
const MaxLods = 5

// Magic is the required first four bytes of every asset file, 'HMAS'
// little-endian.
const Magic uint32 = 0x534D4148

const maxDependencies = 16
const nameLen = 64

// CompressionMethod identifies how a LOD's payload bytes are encoded on
// disk.
type CompressionMethod uint32

const (
	CompressionNone CompressionMethod = iota
	CompressionLZ4
	CompressionRLE
	// CompressionZSTD is accepted on read and treated as RLE.
	CompressionZSTD
)

// LodEntry is the per-LOD slice of the on-disk LOD table (32 bytes).
type LodEntry struct {
	DataOffset          uint32
	DataSize            uint32
	CompressedSize      uint32
	VertexCount         uint32
	IndexCount          uint32
	ScreenSizeThreshold float32
	Compression         CompressionMethod
	Reserved            uint32
}

// Header is the parsed, in-memory form of the persisted on-disk asset
// header. Field order and sizes mirror the wire format
// exactly; ReadHeader/WriteHeader are the only places that format is
// allowed to leak into.
type Header struct {
	Version          uint32
	AssetID          ID
	Type             uint32
	Flags            uint32
	Compression      CompressionMethod
	UncompressedSize uint64
	CompressedSize   uint64
	Lods             []LodEntry
	Dependencies     []ID
	Name             string
	Checksum         uint32

	// HeaderEnd is the byte offset, from the start of the file, where the
	// payload begins. LOD byte ranges are relative to this offset.
	HeaderEnd int64
}

// headerSize returns the total on-disk header size for a given LOD count.
func headerSize(lodCount int) int64 {
	return 52 + int64(lodCount)*32 + 4 + maxDependencies*8 + nameLen + 4
}

// ReadHeader parses an HMAS header from r, which must be positioned (or
// support ReadAt) at the start of the file. It validates the magic and LOD
// count but does not validate the checksum; callers that need tamper
// evidence should use the checksum field directly or the optional blake2b
// audit in package reader.
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, 52)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("assetmodel: read fixed header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(fixed[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("%w: got %#x", ErrHeaderInvalid, magic)
	}

	h := &Header{
		Version:          binary.LittleEndian.Uint32(fixed[4:8]),
		AssetID:          ID(binary.LittleEndian.Uint64(fixed[8:16])),
		Type:             binary.LittleEndian.Uint32(fixed[16:20]),
		Flags:            binary.LittleEndian.Uint32(fixed[20:24]),
		Compression:      CompressionMethod(binary.LittleEndian.Uint32(fixed[24:28])),
		UncompressedSize: binary.LittleEndian.Uint64(fixed[32:40]),
		CompressedSize:   binary.LittleEndian.Uint64(fixed[40:48]),
	}
	lodCount := binary.LittleEndian.Uint32(fixed[48:52])
	if lodCount > MaxLods {
		return nil, fmt.Errorf("%w: lod_count %d exceeds %d", ErrHeaderInvalid, lodCount, MaxLods)
	}

	h.Lods = make([]LodEntry, lodCount)
	lodBuf := make([]byte, 32)
	for i := range h.Lods {
		if _, err := io.ReadFull(r, lodBuf); err != nil {
			return nil, fmt.Errorf("assetmodel: read lod table: %w", err)
		}
		h.Lods[i] = LodEntry{
			DataOffset:          binary.LittleEndian.Uint32(lodBuf[0:4]),
			DataSize:            binary.LittleEndian.Uint32(lodBuf[4:8]),
			CompressedSize:      binary.LittleEndian.Uint32(lodBuf[8:12]),
			VertexCount:         binary.LittleEndian.Uint32(lodBuf[12:16]),
			IndexCount:          binary.LittleEndian.Uint32(lodBuf[16:20]),
			ScreenSizeThreshold: float32FromBits(binary.LittleEndian.Uint32(lodBuf[20:24])),
			Compression:         CompressionMethod(binary.LittleEndian.Uint32(lodBuf[24:28])),
			Reserved:            binary.LittleEndian.Uint32(lodBuf[28:32]),
		}
	}

	tail := make([]byte, 4+maxDependencies*8+nameLen+4)
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, fmt.Errorf("assetmodel: read header tail: %w", err)
	}
	depCount := binary.LittleEndian.Uint32(tail[0:4])
	if depCount > maxDependencies {
		depCount = maxDependencies
	}
	h.Dependencies = make([]ID, depCount)
	for i := range h.Dependencies {
		off := 4 + i*8
		h.Dependencies[i] = ID(binary.LittleEndian.Uint64(tail[off : off+8]))
	}
	nameStart := 4 + maxDependencies*8
	h.Name = string(bytes.TrimRight(tail[nameStart:nameStart+nameLen], "\x00"))
	h.Checksum = binary.LittleEndian.Uint32(tail[nameStart+nameLen:])

	h.HeaderEnd = headerSize(len(h.Lods))
	return h, nil
}

// WriteHeader serializes h in the exact on-disk layout. Used by tests and
// by offline tooling that stages fixtures; the live engine is read-only.
func WriteHeader(w io.Writer, h *Header) error {
	if len(h.Lods) > MaxLods {
		return fmt.Errorf("assetmodel: too many lods: %d", len(h.Lods))
	}
	fixed := make([]byte, 52)
	binary.LittleEndian.PutUint32(fixed[0:4], Magic)
	binary.LittleEndian.PutUint32(fixed[4:8], h.Version)
	binary.LittleEndian.PutUint64(fixed[8:16], uint64(h.AssetID))
	binary.LittleEndian.PutUint32(fixed[16:20], h.Type)
	binary.LittleEndian.PutUint32(fixed[20:24], h.Flags)
	binary.LittleEndian.PutUint32(fixed[24:28], uint32(h.Compression))
	binary.LittleEndian.PutUint64(fixed[32:40], h.UncompressedSize)
	binary.LittleEndian.PutUint64(fixed[40:48], h.CompressedSize)
	binary.LittleEndian.PutUint32(fixed[48:52], uint32(len(h.Lods)))
	if _, err := w.Write(fixed); err != nil {
		return err
	}

	for _, l := range h.Lods {
		lodBuf := make([]byte, 32)
		binary.LittleEndian.PutUint32(lodBuf[0:4], l.DataOffset)
		binary.LittleEndian.PutUint32(lodBuf[4:8], l.DataSize)
		binary.LittleEndian.PutUint32(lodBuf[8:12], l.CompressedSize)
		binary.LittleEndian.PutUint32(lodBuf[12:16], l.VertexCount)
		binary.LittleEndian.PutUint32(lodBuf[16:20], l.IndexCount)
		binary.LittleEndian.PutUint32(lodBuf[20:24], float32Bits(l.ScreenSizeThreshold))
		binary.LittleEndian.PutUint32(lodBuf[24:28], uint32(l.Compression))
		binary.LittleEndian.PutUint32(lodBuf[28:32], l.Reserved)
		if _, err := w.Write(lodBuf); err != nil {
			return err
		}
	}

	tail := make([]byte, 4+maxDependencies*8+nameLen+4)
	binary.LittleEndian.PutUint32(tail[0:4], uint32(len(h.Dependencies)))
	for i, dep := range h.Dependencies {
		if i >= maxDependencies {
			break
		}
		off := 4 + i*8
		binary.LittleEndian.PutUint64(tail[off:off+8], uint64(dep))
	}
	nameStart := 4 + maxDependencies*8
	copy(tail[nameStart:nameStart+nameLen], []byte(h.Name))
	binary.LittleEndian.PutUint32(tail[nameStart+nameLen:], h.Checksum)
	_, err := w.Write(tail)
	return err
}

// LodDataRange returns the absolute [start, end) byte range of LOD l's
// payload within the file, given the header's HeaderEnd.
func (h *Header) LodDataRange(l Lod) (start, end int64, err error) {
	if int(l) < 0 || int(l) >= len(h.Lods) {
		return 0, 0, fmt.Errorf("%w: lod %d out of range [0,%d)", ErrHeaderInvalid, l, len(h.Lods))
	}
	entry := h.Lods[l]
	start = h.HeaderEnd + int64(entry.DataOffset)
	end = start + int64(entry.CompressedSize)
	return start, end, nil
}

// ClampLod clamps a requested LOD to the range actually present in the
// header.
func (h *Header) ClampLod(requested Lod) Lod {
	if len(h.Lods) == 0 {
		return 0
	}
	if int(requested) >= len(h.Lods) {
		return Lod(len(h.Lods) - 1)
	}
	if requested < 0 {
		return 0
	}
	return requested
}

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func float32Bits(f float32) uint32 {
	return math.Float32bits(f)
}

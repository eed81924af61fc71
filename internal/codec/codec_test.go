package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

func TestIdentityRoundTrip(t *testing.T) {
	src := []byte("arbitrary asset bytes")
	c := Identity{}
	enc := c.Encode(src)
	dst := make([]byte, len(src))
	n, err := c.Decode(dst, enc)
	if err != nil || n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Fatalf("identity round trip failed: n=%d err=%v", n, err)
	}
}

func TestLZRoundTripRepeatingData(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
	c := LZ{}
	enc := c.Encode(src)
	if len(enc) >= len(src) {
		t.Fatalf("expected compression of repeating data, got %d >= %d", len(enc), len(src))
	}
	dst := make([]byte, len(src))
	n, err := c.Decode(dst, enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Fatalf("round trip mismatch: n=%d want=%d", n, len(src))
	}
}

func TestLZRoundTripRandomData(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := make([]byte, 4096)
	rng.Read(src)

	c := LZ{}
	enc := c.Encode(src)
	dst := make([]byte, len(src))
	n, err := c.Decode(dst, enc)
	if err != nil || n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Fatalf("random round trip failed: n=%d err=%v", n, err)
	}
}

func TestLZOffsetOneProducesRun(t *testing.T) {
	// A single-byte run long enough to trigger an offset=1 match token.
	src := append([]byte{'Z'}, bytes.Repeat([]byte{'Z'}, 40)...)
	c := LZ{}
	enc := c.Encode(src)
	dst := make([]byte, len(src))
	n, err := c.Decode(dst, enc)
	if err != nil || n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Fatalf("offset=1 run failed: n=%d err=%v", n, err)
	}
}

func TestLZDecodeRejectsTruncatedMatch(t *testing.T) {
	c := LZ{}
	_, err := c.Decode(make([]byte, 16), []byte{0x84, 0x01})
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestRLERoundTrip(t *testing.T) {
	src := append(bytes.Repeat([]byte{7}, 10), []byte{1, 2, 3, 0xFF, 0xFF}...)
	c := RLE{}
	enc := c.Encode(src)
	dst := make([]byte, len(src))
	n, err := c.Decode(dst, enc)
	if err != nil || n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Fatalf("RLE round trip failed: n=%d err=%v", n, err)
	}
}

func TestRLEDecodeRejectsTruncatedEscape(t *testing.T) {
	c := RLE{}
	_, err := c.Decode(make([]byte, 16), []byte{0xFF, 0x05})
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestForSelectsCoderByMethod(t *testing.T) {
	if _, err := For(assetmodel.CompressionNone); err != nil {
		t.Fatalf("CompressionNone: %v", err)
	}
	if _, err := For(assetmodel.CompressionLZ4); err != nil {
		t.Fatalf("CompressionLZ4: %v", err)
	}
	if _, err := For(assetmodel.CompressionRLE); err != nil {
		t.Fatalf("CompressionRLE: %v", err)
	}
	if _, err := For(assetmodel.CompressionZSTD); err != nil {
		t.Fatalf("CompressionZSTD should map to RLE, got error: %v", err)
	}
	if _, err := For(assetmodel.CompressionMethod(99)); err == nil {
		t.Fatal("expected error for unknown compression method")
	}
}

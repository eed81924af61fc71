package codec

// LZ is the engine's LZ4-like dictionary coder: a 12-bit
// hash table of most-recent 4-byte prefix matches, literal tokens
// `[len<=127][bytes...]`, and match tokens `[0x80|len-4][offset_lo][offset_hi]`
// with offsets up to 65535. An offset of 1 is a legal run, decoded
// byte-by-byte so it correctly reproduces a repeating run rather than a
// verbatim copy.
type LZ struct{}

const (
	lzHashBits  = 12
	lzHashSize  = 1 << lzHashBits
	lzMinMatch  = 4
	lzMaxOffset = 65535
	lzMaxLit    = 127
	lzMaxMatch  = 4 + 127 // len-4 packed into 7 bits
)

func lzHash(b []byte) uint32 {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return (v * 2654435761) >> (32 - lzHashBits)
}

// Encode greedily finds the longest match at each position using a
// single-entry-per-bucket hash chain, emitting literal runs between
// matches.
func (LZ) Encode(src []byte) []byte {
	var out []byte
	var table [lzHashSize]int32
	for i := range table {
		table[i] = -1
	}

	n := len(src)
	litStart := 0
	i := 0

	flushLiterals := func(end int) {
		for litStart < end {
			chunk := end - litStart
			if chunk > lzMaxLit {
				chunk = lzMaxLit
			}
			out = append(out, byte(chunk))
			out = append(out, src[litStart:litStart+chunk]...)
			litStart += chunk
		}
	}

	for i < n {
		if i+lzMinMatch > n {
			i++
			continue
		}
		h := lzHash(src[i:])
		cand := table[h]
		table[h] = int32(i)

		if cand < 0 || i-int(cand) > lzMaxOffset {
			i++
			continue
		}
		matchLen := matchLength(src, int(cand), i, n)
		if matchLen < lzMinMatch {
			i++
			continue
		}
		if matchLen > lzMaxMatch {
			matchLen = lzMaxMatch
		}

		flushLiterals(i)
		offset := i - int(cand)
		out = append(out, 0x80|byte(matchLen-4), byte(offset&0xFF), byte((offset>>8)&0xFF))
		i += matchLen
		litStart = i
	}

	flushLiterals(n)
	return out
}

func matchLength(src []byte, a, b, n int) int {
	l := 0
	for b+l < n && src[a+l] == src[b+l] {
		l++
		if l >= lzMaxMatch {
			break
		}
	}
	return l
}

// Decode mirrors Encode's token stream exactly. dst must be at least as
// large as the decompressed output; it returns the number of bytes
// written.
func (LZ) Decode(dst, src []byte) (int, error) {
	var out int
	i := 0
	for i < len(src) {
		token := src[i]
		i++
		if token&0x80 == 0 {
			length := int(token)
			if i+length > len(src) || out+length > len(dst) {
				return out, ErrCorrupt
			}
			copy(dst[out:out+length], src[i:i+length])
			i += length
			out += length
			continue
		}

		length := int(token&0x7F) + 4
		if i+2 > len(src) {
			return out, ErrCorrupt
		}
		offset := int(src[i]) | int(src[i+1])<<8
		i += 2
		if offset == 0 || offset > out {
			return out, ErrCorrupt
		}
		if out+length > len(dst) {
			return out, ErrCorrupt
		}

		// offset==1 is a legal run: byte-by-byte copy so overlapping
		// source/destination windows reproduce a repeating run rather
		// than a verbatim block copy.
		srcPos := out - offset
		for k := 0; k < length; k++ {
			dst[out+k] = dst[srcPos]
			srcPos++
		}
		out += length
	}
	return out, nil
}

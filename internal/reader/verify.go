package reader

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex BLAKE2b-256 digest of data. The on-disk format's
// own integrity field is a 32-bit checksum; this stronger digest is
// computed on demand (Engine.AssetDigest and the web UI's digest route)
// and is not stored in the catalog or compared automatically.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

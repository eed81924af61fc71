// Package reader implements the Asset Reader: a pluggable byte-range
// backend, a file-handle cache for the local backend, header parsing, and
// compressed-block reading.
package reader

import (
	"context"
	"fmt"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// Backend turns an asset id plus byte range into bytes. All four
// implementations (local, S3, Azure, GCS) share this contract so the
// scheduler and codec never know which one is in play.
type Backend interface {
	ReadAt(ctx context.Context, id assetmodel.ID, offset int64, buf []byte) (int, error)
	// Close releases backend-held resources (open file handles, clients).
	Close() error
}

// pathFor renders the reference local convention used by every backend's
// key/object naming: assets/streaming/{id:016x}.asset.
func pathFor(id assetmodel.ID) string {
	return fmt.Sprintf("assets/streaming/%016x.asset", uint64(id))
}

package assetmodel

import "errors"

// Sentinel errors for the load-failure taxonomy. Scheduler and reader
// code wraps these with context; callers compare with errors.Is.
var (
	ErrNotFound        = errors.New("assetmodel: asset not found")
	ErrHeaderInvalid   = errors.New("assetmodel: header invalid")
	ErrReadTruncated   = errors.New("assetmodel: read truncated")
	ErrCompression     = errors.New("assetmodel: compression error")
	ErrOutOfMemory     = errors.New("assetmodel: out of memory")
)

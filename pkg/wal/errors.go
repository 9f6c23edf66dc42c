// Package wal implements the write-ahead journal that makes the kv
// connector durable: committed batches of put/delete records, periodic
// checkpoints backed by a snapshot file, and replay on open.
package wal

import "errors"

var (
	// ErrCorrupted indicates a CRC mismatch inside a sealed segment
	ErrCorrupted = errors.New("wal: corrupted entry")

	// ErrTruncated indicates an entry cut short by a crash mid-write
	ErrTruncated = errors.New("wal: truncated entry")

	// ErrLogClosed indicates an operation on a closed log
	ErrLogClosed = errors.New("wal: log closed")

	// ErrEmptyBatch indicates a commit without operations
	ErrEmptyBatch = errors.New("wal: empty batch")

	// ErrUnknownOp indicates a record op other than put or delete
	ErrUnknownOp = errors.New("wal: unknown op")

	// ErrBadVersion indicates an entry written by an incompatible format
	ErrBadVersion = errors.New("wal: unsupported entry version")
)

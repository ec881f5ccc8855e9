// Package storage defines the pluggable persistence contract for cached
// artifacts.
//
// A Backend maps fingerprints to immutable byte sequences. Writes are staged
// through a Writer and only become visible to Has and Open once the Writer is
// closed; a discarded Writer leaves nothing behind.
//
// Implementations live in subpackages: memory (process-local), disk (sharded
// directory tree), null (always misses) and compress (zstd decorator).
package storage

import (
	"errors"
	"io"

	"github.com/meigma/cachemir/fingerprint"
)

var (
	// ErrNotFound is returned by Open when no committed artifact exists.
	ErrNotFound = errors.New("storage: artifact not found")

	// ErrClosed is returned when writing to or closing a finalized Writer.
	ErrClosed = errors.New("storage: writer already closed")

	// ErrInvalidFingerprint is returned when a backend cannot address a fingerprint.
	ErrInvalidFingerprint = errors.New("storage: invalid fingerprint")
)

// Backend persists artifacts by fingerprint.
//
// Has and Open must be safe for concurrent use. Writers for distinct
// fingerprints must be independently usable from different goroutines.
// Concurrent writers for the same fingerprint are not coordinated; callers
// serialize them.
type Backend interface {
	// Has reports whether a committed artifact exists for fp.
	// Has never fails; unaddressable fingerprints report false.
	Has(fp fingerprint.Fingerprint) bool

	// Open returns a reader over the committed bytes for fp.
	// Returns an error matching ErrNotFound if nothing is committed.
	// Each call returns an independent reader.
	Open(fp fingerprint.Fingerprint) (io.ReadCloser, error)

	// Writer stages a new artifact for fp.
	Writer(fp fingerprint.Fingerprint) (Writer, error)
}

// Writer stages an artifact.
//
// Content is written via Write calls. Afterwards:
//   - Close commits the staged bytes, making them visible to Has and Open
//     atomically. A previously committed artifact is replaced.
//   - Discard aborts the write and cleans up staged data.
//
// Once finalized, Write and Close return ErrClosed. Discard after Close is a
// no-op so it can be deferred unconditionally.
type Writer interface {
	io.Writer

	// Close commits the artifact.
	Close() error

	// Discard aborts the write.
	Discard() error
}

// Wrapper is implemented by decorator backends.
type Wrapper interface {
	// Unwrap returns the decorated backend.
	Unwrap() Backend
}

// Base returns the innermost backend by following Unwrap.
func Base(b Backend) Backend {
	for {
		w, ok := b.(Wrapper)
		if !ok {
			return b
		}
		inner := w.Unwrap()
		if inner == nil {
			return b
		}
		b = inner
	}
}

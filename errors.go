package cachemir

import (
	"errors"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
)

var (
	// ErrCompute wraps failures returned (or panics raised) by a compute callback.
	// Nothing is committed when it is returned, so a retry recomputes.
	ErrCompute = errors.New("cachemir: compute failed")

	// ErrBackendInvariant is returned when a backend does not report a
	// committed artifact as present. It signals a broken backend and should
	// not be retried.
	ErrBackendInvariant = errors.New("cachemir: backend invariant violated")
)

// Errors re-exported from subpackages.
var (
	// ErrNotFound is returned when an artifact is not in the backend.
	ErrNotFound = storage.ErrNotFound

	// ErrUnsupportedArg is returned when an argument cannot be fingerprinted.
	ErrUnsupportedArg = fingerprint.ErrUnsupportedArg
)

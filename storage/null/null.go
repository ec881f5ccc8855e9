// Package null provides a backend that never reports a cache hit.
//
// It is meant for development: every lookup recomputes, while writes still
// land in the delegate so the latest output can be inspected.
package null

import (
	"io"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/memory"
)

// Backend wraps a delegate and reports every fingerprint as absent.
type Backend struct {
	delegate storage.Backend
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Wrapper = (*Backend)(nil)
)

// New wraps delegate. A nil delegate uses a fresh memory backend.
func New(delegate storage.Backend) *Backend {
	if delegate == nil {
		delegate = memory.New()
	}
	return &Backend{delegate: delegate}
}

// Has always returns false.
func (b *Backend) Has(fingerprint.Fingerprint) bool {
	return false
}

// Open reads from the delegate.
func (b *Backend) Open(fp fingerprint.Fingerprint) (io.ReadCloser, error) {
	return b.delegate.Open(fp)
}

// Writer writes to the delegate.
func (b *Backend) Writer(fp fingerprint.Fingerprint) (storage.Writer, error) {
	return b.delegate.Writer(fp)
}

// Unwrap returns the delegate.
func (b *Backend) Unwrap() storage.Backend {
	return b.delegate
}

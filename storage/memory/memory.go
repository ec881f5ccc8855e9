// Package memory provides a process-local storage backend.
package memory

import (
	"bytes"
	"io"
	"sync"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
)

// Backend keeps artifacts in a map for the lifetime of the value.
//
// Memory use grows with the total size of committed artifacts; nothing is
// ever evicted. Backend is safe for concurrent use.
type Backend struct {
	mu   sync.RWMutex
	data map[fingerprint.Fingerprint][]byte
}

var _ storage.Backend = (*Backend)(nil)

// New constructs an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[fingerprint.Fingerprint][]byte)}
}

// Has reports whether fp has been committed.
func (b *Backend) Has(fp fingerprint.Fingerprint) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[fp]
	return ok
}

// Open returns a fresh reader over the committed bytes.
func (b *Backend) Open(fp fingerprint.Fingerprint) (io.ReadCloser, error) {
	b.mu.RLock()
	data, ok := b.data[fp]
	b.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	// Stored slices are never mutated, so readers can share them.
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Writer returns a Writer that buffers in memory and stores on Close.
func (b *Backend) Writer(fp fingerprint.Fingerprint) (storage.Writer, error) {
	return &bufferWriter{backend: b, fp: fp}, nil
}

// Len returns the number of committed artifacts.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

func (b *Backend) put(fp fingerprint.Fingerprint, content []byte) {
	cp := bytes.Clone(content)
	if cp == nil {
		cp = []byte{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[fp] = cp
}

// bufferWriter buffers writes and stores them in the backend on Close.
type bufferWriter struct {
	backend *Backend
	fp      fingerprint.Fingerprint
	buf     bytes.Buffer
	done    bool
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storage.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *bufferWriter) Close() error {
	if w.done {
		return storage.ErrClosed
	}
	w.done = true
	w.backend.put(w.fp, w.buf.Bytes())
	w.buf = bytes.Buffer{}
	return nil
}

func (w *bufferWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	w.buf = bytes.Buffer{}
	return nil
}

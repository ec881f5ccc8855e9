// Package testutil provides helpers shared by cachemir tests.
package testutil

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/memory"
)

// CountingCompute writes a fixed payload and counts invocations.
type CountingCompute struct {
	Payload []byte

	// Gate, when non-nil, blocks each invocation until it is closed.
	Gate chan struct{}

	calls atomic.Int64
}

// Compute implements the compute callback signature.
func (c *CountingCompute) Compute(ctx context.Context, w io.Writer) error {
	c.calls.Add(1)
	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err := w.Write(c.Payload)
	return err
}

// Calls returns the number of invocations so far.
func (c *CountingCompute) Calls() int64 {
	return c.calls.Load()
}

// ForgetfulBackend commits to memory but never reports artifacts as present.
// It simulates a backend that violates the commit visibility contract.
type ForgetfulBackend struct {
	*memory.Backend
}

// NewForgetfulBackend returns an empty ForgetfulBackend.
func NewForgetfulBackend() *ForgetfulBackend {
	return &ForgetfulBackend{Backend: memory.New()}
}

// Has always returns false.
func (b *ForgetfulBackend) Has(fingerprint.Fingerprint) bool {
	return false
}

// RecordingBackend wraps a backend and records writer lifecycle events.
type RecordingBackend struct {
	storage.Backend

	mu        sync.Mutex
	commits   int
	discards  int
	writerErr error
}

// NewRecordingBackend wraps inner.
func NewRecordingBackend(inner storage.Backend) *RecordingBackend {
	return &RecordingBackend{Backend: inner}
}

// FailWriters makes subsequent Writer calls return err.
func (b *RecordingBackend) FailWriters(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writerErr = err
}

// Writer returns a recording writer around the inner backend's writer.
func (b *RecordingBackend) Writer(fp fingerprint.Fingerprint) (storage.Writer, error) {
	b.mu.Lock()
	err := b.writerErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	w, err := b.Backend.Writer(fp)
	if err != nil {
		return nil, err
	}
	return &recordingWriter{Writer: w, backend: b}, nil
}

// Commits returns the number of successful commits.
func (b *RecordingBackend) Commits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commits
}

// Discards returns the number of writers discarded before commit.
func (b *RecordingBackend) Discards() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discards
}

type recordingWriter struct {
	storage.Writer
	backend  *RecordingBackend
	finished bool
}

func (w *recordingWriter) Close() error {
	err := w.Writer.Close()
	if err == nil && !w.finished {
		w.finished = true
		w.backend.mu.Lock()
		w.backend.commits++
		w.backend.mu.Unlock()
	}
	return err
}

func (w *recordingWriter) Discard() error {
	if !w.finished {
		w.finished = true
		w.backend.mu.Lock()
		w.backend.discards++
		w.backend.mu.Unlock()
	}
	return w.Writer.Discard()
}

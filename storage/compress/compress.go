// Package compress provides a storage decorator that zstd-compresses
// artifacts at rest.
//
// Fingerprints are passed through unchanged, so a compressed backend must not
// share its delegate's storage with an uncompressed one.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
)

// Backend compresses on write and decompresses on read.
type Backend struct {
	delegate storage.Backend
	level    zstd.EncoderLevel
	decoders *decoderPool
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Wrapper = (*Backend)(nil)
)

// Option configures a compressing backend.
type Option func(*config)

type config struct {
	level            zstd.EncoderLevel
	maxDecoderMemory uint64
}

// WithEncoderLevel sets the zstd compression level. Defaults to zstd.SpeedDefault.
func WithEncoderLevel(level zstd.EncoderLevel) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithMaxDecoderMemory caps the memory a decoder may allocate.
// Zero means no limit.
func WithMaxDecoderMemory(n uint64) Option {
	return func(c *config) {
		c.maxDecoderMemory = n
	}
}

// New wraps delegate.
func New(delegate storage.Backend, opts ...Option) *Backend {
	cfg := config{level: zstd.SpeedDefault}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Backend{
		delegate: delegate,
		level:    cfg.level,
		decoders: newDecoderPool(cfg.maxDecoderMemory),
	}
}

// Has delegates.
func (b *Backend) Has(fp fingerprint.Fingerprint) bool {
	return b.delegate.Has(fp)
}

// Open returns a reader yielding the decompressed artifact.
func (b *Backend) Open(fp fingerprint.Fingerprint) (io.ReadCloser, error) {
	rc, err := b.delegate.Open(fp)
	if err != nil {
		return nil, err
	}
	dec, release, err := b.decoders.Get(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open zstd decoder: %w", err)
	}
	return &decompressReader{dec: dec, release: release, src: rc}, nil
}

// Writer returns a Writer that compresses into the delegate's writer.
func (b *Backend) Writer(fp fingerprint.Fingerprint) (storage.Writer, error) {
	w, err := b.delegate.Writer(fp)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(b.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		_ = w.Discard()
		return nil, fmt.Errorf("open zstd encoder: %w", err)
	}
	return &compressWriter{enc: enc, dst: w}, nil
}

// Unwrap returns the delegate.
func (b *Backend) Unwrap() storage.Backend {
	return b.delegate
}

type compressWriter struct {
	enc  *zstd.Encoder
	dst  storage.Writer
	done bool
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storage.ErrClosed
	}
	return w.enc.Write(p)
}

func (w *compressWriter) Close() error {
	if w.done {
		return storage.ErrClosed
	}
	w.done = true
	if err := w.enc.Close(); err != nil {
		_ = w.dst.Discard()
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return w.dst.Close()
}

func (w *compressWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	w.enc.Reset(io.Discard)
	_ = w.enc.Close()
	return w.dst.Discard()
}

type decompressReader struct {
	dec     *zstd.Decoder
	release func()
	src     io.ReadCloser
	closed  bool
}

func (r *decompressReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, storage.ErrClosed
	}
	return r.dec.Read(p)
}

func (r *decompressReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.release()
	return r.src.Close()
}

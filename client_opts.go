package cachemir

import (
	"errors"
	"log/slog"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/compress"
	"github.com/meigma/cachemir/storage/disk"
	"github.com/meigma/cachemir/storage/null"
)

// Option configures a Client.
type Option func(*Client) error

// --- Storage Options ---

// WithBackend stores artifacts in backend.
// It takes precedence over [WithCacheDir].
func WithBackend(backend storage.Backend) Option {
	return func(c *Client) error {
		if backend == nil {
			return errors.New("backend is nil")
		}
		c.backend = backend
		return nil
	}
}

// WithCacheDir stores artifacts in a sharded directory tree rooted at dir.
// opts are passed to the disk backend.
func WithCacheDir(dir string, opts ...disk.Option) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		c.cacheDir = dir
		c.diskOpts = append(c.diskOpts, opts...)
		return nil
	}
}

// WithCompression stores artifacts zstd-compressed.
func WithCompression(opts ...compress.Option) Option {
	return func(c *Client) error {
		c.compressed = true
		c.compressOpts = append(c.compressOpts, opts...)
		return nil
	}
}

// WithNullStorage makes every lookup a miss so every call recomputes.
// Outputs are still written to the configured backend. Intended for
// debugging compute callbacks.
func WithNullStorage() Option {
	return func(c *Client) error {
		c.bypass = true
		return nil
	}
}

// --- Behavior Options ---

// WithFingerprinter replaces the default fingerprint scheme.
func WithFingerprinter(fp fingerprint.Computer) Option {
	return func(c *Client) error {
		if fp == nil {
			return errors.New("fingerprinter is nil")
		}
		c.fingerprinter = fp
		return nil
	}
}

// WithPrefetchConcurrency sets the number of workers used by Prefetch.
// Values < 0 force serial execution. Zero uses GOMAXPROCS.
func WithPrefetchConcurrency(workers int) Option {
	return func(c *Client) error {
		c.prefetchWorkers = workers
		return nil
	}
}

// WithLogger sets a logger for the client.
// The logger is propagated to the disk backend created by [WithCacheDir].
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// buildBackend assembles the backend chain: base, then compression, then
// the null decorator outermost so bypassing never skips decompression.
func (c *Client) buildBackend() error {
	if c.backend == nil {
		var opts []disk.Option
		if c.logger != nil {
			opts = append(opts, disk.WithLogger(c.logger))
		}
		opts = append(opts, c.diskOpts...)
		d, err := disk.New(c.cacheDir, opts...)
		if err != nil {
			return err
		}
		c.backend = d
	}
	if c.compressed {
		c.backend = compress.New(c.backend, c.compressOpts...)
	}
	if c.bypass {
		c.backend = null.New(c.backend)
	}
	return nil
}

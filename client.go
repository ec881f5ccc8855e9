package cachemir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/compress"
	"github.com/meigma/cachemir/storage/disk"
)

// errFlightCanceled marks a computation that failed after the context of the
// caller running it ended.
var errFlightCanceled = errors.New("cachemir: computation canceled")

// ComputeFunc produces an artifact by writing it to w.
//
// Nothing written is visible to other callers until ComputeFunc returns nil.
// Returning an error (or panicking) discards everything written.
type ComputeFunc func(ctx context.Context, w io.Writer) error

// Client returns stored artifacts or computes and commits them.
//
// Client uses singleflight to run at most one computation per fingerprint at
// a time; concurrent callers for the same fingerprint wait for it and then
// read the committed artifact. Computations for distinct fingerprints run
// independently.
type Client struct {
	backend         storage.Backend
	fingerprinter   fingerprint.Computer
	prefetchWorkers int
	logger          *slog.Logger
	flights         singleflight.Group

	// Construction-time settings for the default backend chain.
	cacheDir     string
	diskOpts     []disk.Option
	compressed   bool
	compressOpts []compress.Option
	bypass       bool
}

// New creates a Client.
//
// Without [WithBackend] or [WithCacheDir], artifacts are stored on disk under
// a fresh temporary directory.
func New(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.buildBackend(); err != nil {
		return nil, err
	}
	if c.fingerprinter == nil {
		c.fingerprinter = fingerprint.Default
	}
	return c, nil
}

// Backend returns the backend artifacts are stored in.
func (c *Client) Backend() storage.Backend {
	return c.backend
}

// Fingerprint derives the address for (owner, args, kwargs) using the
// client's fingerprinter.
func (c *Client) Fingerprint(owner string, args []any, kwargs fingerprint.KW) (fingerprint.Fingerprint, error) {
	fp, err := c.fingerprinter.Compute(owner, args, kwargs)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", owner, err)
	}
	return fp, nil
}

// GetOrCompute returns a reader over the artifact for fp, running fn to
// produce it if the backend does not have it yet. The caller must close the
// returned reader.
//
// If another caller is already computing fp, GetOrCompute waits for that
// computation instead of starting a second one. A waiting caller stops
// waiting when its ctx is done. The computation runs under the context of
// the caller that started it; if that context ends first, a waiter whose
// context is still live starts the computation again with its own fn.
func (c *Client) GetOrCompute(ctx context.Context, fp fingerprint.Fingerprint, fn ComputeFunc) (io.ReadCloser, error) {
	if err := c.ensure(ctx, fp, fn); err != nil {
		return nil, err
	}
	return c.open(fp)
}

// ensure returns once fp is committed, computing it if needed.
func (c *Client) ensure(ctx context.Context, fp fingerprint.Fingerprint, fn ComputeFunc) error {
	if fn == nil {
		return errors.New("compute func is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Fast path, avoids singleflight overhead.
	if c.backend.Has(fp) {
		c.log().Debug("cache hit", slog.String("fingerprint", fp.String()))
		return nil
	}

	for {
		ch := c.flights.DoChan(string(fp), func() (any, error) {
			err := c.compute(ctx, fp, fn)
			if err != nil && ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", errFlightCanceled, err)
			}
			return nil, err
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-ch:
			// The flight ran under the context of the caller that started
			// it. If that context ended, callers that are still live take
			// over instead of inheriting the cancellation.
			if errors.Is(res.Err, errFlightCanceled) && ctx.Err() == nil {
				c.log().Debug("computation abandoned by its caller, retrying", slog.String("fingerprint", fp.String()))
				continue
			}
			return res.Err
		}
	}
}

// compute runs fn and commits its output. The writer is discarded on every
// path that does not reach a successful Close.
func (c *Client) compute(ctx context.Context, fp fingerprint.Fingerprint, fn ComputeFunc) (err error) {
	logger := c.log().With(slog.String("fingerprint", fp.String()))

	// Another flight may have committed fp between our Has check and
	// acquiring the singleflight key.
	if c.backend.Has(fp) {
		logger.Debug("cache hit after wait")
		return nil
	}

	w, err := c.backend.Writer(fp)
	if err != nil {
		return fmt.Errorf("open writer for %s: %w", fp, err)
	}
	defer func() {
		if derr := w.Discard(); derr != nil {
			logger.Warn("discard staged artifact", slog.Any("error", derr))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrCompute, r)
		}
	}()

	logger.Debug("cache miss, computing")
	start := time.Now()
	if err := fn(ctx, struct{ io.Writer }{w}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompute, fp, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", fp, err)
	}

	if !storage.Base(c.backend).Has(fp) {
		logger.Error("committed artifact not visible", slog.String("backend", fmt.Sprintf("%T", c.backend)))
		return fmt.Errorf("%w: %s not present after commit", ErrBackendInvariant, fp)
	}
	logger.Debug("artifact committed", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Client) open(fp fingerprint.Fingerprint) (io.ReadCloser, error) {
	rc, err := c.backend.Open(fp)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", fp, err)
	}
	return rc, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

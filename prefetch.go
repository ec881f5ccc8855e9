package cachemir

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/cachemir/fingerprint"
)

// Request names an artifact and how to compute it.
type Request struct {
	Fingerprint fingerprint.Fingerprint
	Compute     ComputeFunc
}

// Prefetch ensures every requested artifact is committed, computing misses
// concurrently. It returns the first error encountered; remaining
// computations are cancelled through ctx.
func (c *Client) Prefetch(ctx context.Context, reqs ...Request) error {
	if len(reqs) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.prefetchLimit())
	for _, req := range reqs {
		g.Go(func() error {
			return c.ensure(ctx, req.Fingerprint, req.Compute)
		})
	}
	return g.Wait()
}

func (c *Client) prefetchLimit() int {
	switch {
	case c.prefetchWorkers < 0:
		return 1
	case c.prefetchWorkers == 0:
		return runtime.GOMAXPROCS(0)
	}
	return c.prefetchWorkers
}

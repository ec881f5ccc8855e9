// Package cachemir memoizes expensive computations that produce a byte
// stream, such as rendering a document or generating an image.
//
// Each computation is addressed by a fingerprint derived from its owner's
// identity and arguments (see the [fingerprint] subpackage). The first request
// for a fingerprint runs the compute callback and commits its output to a
// pluggable [storage.Backend]; later requests read the stored artifact.
//
// # Quick Start
//
//	c, err := cachemir.New(cachemir.WithCacheDir("/var/cache/renders"))
//	if err != nil {
//	    return err
//	}
//	fp, err := c.Fingerprint("invoice#42", []any{"pdf"}, nil)
//	if err != nil {
//	    return err
//	}
//	rc, err := c.GetOrCompute(ctx, fp, func(ctx context.Context, w io.Writer) error {
//	    return renderInvoice(ctx, w, 42)
//	})
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
// # Memos
//
// A [Memo] binds a named compute function to a client, replacing the
// pattern of attaching cached getters to a type:
//
//	pdf := c.Memo("invoice_pdf", renderInvoicePDF)
//	rc, err := pdf.Get(ctx, "invoice#42", []any{dpi}, nil)
//
// # Concurrency
//
// Concurrent requests for the same fingerprint share one computation.
// A failed computation commits nothing, and the next request retries it.
// If the caller that started a computation gives up, callers still waiting
// on it take over.
//
// # Storage
//
// Backends live under [storage]: memory, disk (sharded directory tree), null
// (always misses, for debugging) and compress (zstd at rest).
package cachemir

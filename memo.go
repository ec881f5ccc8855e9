package cachemir

import (
	"context"
	"io"

	"github.com/meigma/cachemir/fingerprint"
)

// MemoFunc produces an artifact for the given arguments by writing it to w.
type MemoFunc func(ctx context.Context, w io.Writer, args []any, kwargs fingerprint.KW) error

// Memo is a named, cached computation bound to a Client.
//
// The owner passed to Get identifies the object the computation belongs to
// and must be stable across processes (a database key, a file path), never
// a pointer or a per-process counter. The memo name is not part of the
// fingerprint: when one owner has several memos, include the memo name in
// the owner identity.
type Memo struct {
	client *Client
	name   string
	fn     MemoFunc
}

// Memo binds fn to c under name.
func (c *Client) Memo(name string, fn MemoFunc) *Memo {
	return &Memo{client: c, name: name, fn: fn}
}

// Name returns the memo's name.
func (m *Memo) Name() string {
	return m.name
}

// Get returns the artifact for (owner, args, kwargs), computing it on a miss.
// The caller must close the returned reader.
func (m *Memo) Get(ctx context.Context, owner string, args []any, kwargs fingerprint.KW) (io.ReadCloser, error) {
	fp, err := m.client.Fingerprint(owner, args, kwargs)
	if err != nil {
		return nil, err
	}
	return m.client.GetOrCompute(ctx, fp, func(ctx context.Context, w io.Writer) error {
		return m.fn(ctx, w, args, kwargs)
	})
}

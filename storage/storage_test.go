package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/cachemir/fingerprint"
)

type leaf struct{}

func (leaf) Has(fingerprint.Fingerprint) bool { return true }
func (leaf) Open(fingerprint.Fingerprint) (io.ReadCloser, error) {
	return nil, ErrNotFound
}
func (leaf) Writer(fingerprint.Fingerprint) (Writer, error) { return nil, ErrClosed }

type wrapper struct {
	leaf
	inner Backend
}

func (w wrapper) Unwrap() Backend { return w.inner }

func TestBase(t *testing.T) {
	t.Parallel()

	base := leaf{}
	assert.Equal(t, Backend(base), Base(base))

	nested := wrapper{inner: wrapper{inner: base}}
	assert.Equal(t, Backend(base), Base(nested))

	dangling := wrapper{}
	assert.Equal(t, Backend(dangling), Base(dangling))
}

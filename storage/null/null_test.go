package null

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/memory"
	"github.com/meigma/cachemir/storage/storagetest"
)

func TestBackendNeverHits(t *testing.T) {
	t.Parallel()

	delegate := memory.New()
	b := New(delegate)
	fp := storagetest.FP(t, "null")

	assert.False(t, b.Has(fp))
	storagetest.Put(t, b, fp, []byte("first"))
	assert.False(t, b.Has(fp))
	assert.True(t, delegate.Has(fp))

	// Reads still see what was just written.
	assert.Equal(t, []byte("first"), storagetest.ReadAll(t, b, fp))

	storagetest.Put(t, b, fp, []byte("second"))
	assert.Equal(t, []byte("second"), storagetest.ReadAll(t, b, fp))
}

func TestBackendDefaultDelegate(t *testing.T) {
	t.Parallel()

	b := New(nil)
	_, ok := b.Unwrap().(*memory.Backend)
	assert.True(t, ok)

	fp := storagetest.FP(t, "default")
	storagetest.Put(t, b, fp, []byte("x"))
	assert.Equal(t, []byte("x"), storagetest.ReadAll(t, b, fp))
}

func TestBackendBase(t *testing.T) {
	t.Parallel()

	delegate := memory.New()
	assert.Same(t, delegate, storage.Base(New(delegate)))
}

package compress

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/disk"
	"github.com/meigma/cachemir/storage/memory"
	"github.com/meigma/cachemir/storage/storagetest"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func TestBackendConformanceMemory(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(*testing.T) storage.Backend { return New(memory.New()) })
}

func TestBackendConformanceDisk(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		d, err := disk.New(t.TempDir(), disk.WithSuffix(".zst"))
		require.NoError(t, err)
		return New(d, WithEncoderLevel(zstd.SpeedFastest))
	})
}

func TestBackendStoresCompressed(t *testing.T) {
	t.Parallel()

	delegate := memory.New()
	b := New(delegate, WithMaxDecoderMemory(64<<20))
	fp := storagetest.FP(t, "compressed")
	content := bytes.Repeat([]byte("This is my output. "), 1000)

	storagetest.Put(t, b, fp, content)

	raw := storagetest.ReadAll(t, delegate, fp)
	assert.True(t, bytes.HasPrefix(raw, zstdMagic), "stored artifact should be a zstd frame")
	assert.Less(t, len(raw), len(content))
	assert.Equal(t, content, storagetest.ReadAll(t, b, fp))
}

func TestBackendDiscardDoesNotCommit(t *testing.T) {
	t.Parallel()

	delegate := memory.New()
	b := New(delegate)
	fp := storagetest.FP(t, "discard")

	w, err := b.Writer(fp)
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("x"), 1<<16))
	require.NoError(t, err)
	require.NoError(t, w.Discard())

	assert.False(t, delegate.Has(fp))
	assert.Zero(t, delegate.Len())
}

func TestBackendUnwrap(t *testing.T) {
	t.Parallel()

	delegate := memory.New()
	b := New(delegate)
	assert.Same(t, delegate, b.Unwrap())
	assert.Same(t, delegate, storage.Base(b))
}

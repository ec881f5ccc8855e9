package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/storagetest"
)

func newTestBackend(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return b
}

func TestBackendConformance(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Backend { return newTestBackend(t) })
}

func TestBackendConformanceUnsharded(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newTestBackend(t, WithShardPrefixLen(0), WithSuffix(".bin"))
	})
}

func TestBackendShardedLayout(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)
	fp := fingerprint.Fingerprint("abcdef0123")
	storagetest.Put(t, b, fp, []byte("sharded"))

	path := filepath.Join(b.Dir(), "ab", "abcdef0123")
	got, err := b.Path(fp)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("sharded"), data)
}

func TestBackendShardDisable(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, WithShardPrefixLen(0))
	fp := storagetest.FP(t, "flat")
	storagetest.Put(t, b, fp, []byte("flat"))

	_, err := os.Stat(filepath.Join(b.Dir(), fp.String()))
	require.NoError(t, err)
}

func TestBackendShortFingerprint(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, WithShardPrefixLen(4))
	path, err := b.Path("ab")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.Dir(), "ab", "ab"), path)
}

func TestBackendSuffix(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, WithSuffix(".pdf"))
	fp := storagetest.FP(t, "suffix")
	storagetest.Put(t, b, fp, []byte("%PDF"))

	path := filepath.Join(b.Dir(), fp.String()[:2], fp.String()+".pdf")
	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, b.Has(fp))
	assert.Equal(t, []byte("%PDF"), storagetest.ReadAll(t, b, fp))
}

func TestBackendPathFunc(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, WithPathFunc(func(dir string, fp fingerprint.Fingerprint) string {
		return filepath.Join(dir, "custom", string(fp)+".out")
	}))
	fp := storagetest.FP(t, "custom")
	storagetest.Put(t, b, fp, []byte("custom"))

	data, err := os.ReadFile(filepath.Join(b.Dir(), "custom", fp.String()+".out"))
	require.NoError(t, err)
	assert.Equal(t, []byte("custom"), data)
	assert.Equal(t, []byte("custom"), storagetest.ReadAll(t, b, fp))
}

func TestBackendInvalidFingerprint(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)
	for _, fp := range []fingerprint.Fingerprint{"", ".hidden", "..", "a/b", `a\b`} {
		t.Run(string(fp), func(t *testing.T) {
			t.Parallel()
			assert.False(t, b.Has(fp))

			_, err := b.Open(fp)
			require.ErrorIs(t, err, storage.ErrInvalidFingerprint)

			_, err = b.Writer(fp)
			require.ErrorIs(t, err, storage.ErrInvalidFingerprint)
		})
	}
}

func TestBackendOpenMissingIncludesPath(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)
	fp := storagetest.FP(t, "missing")

	_, err := b.Open(fp)
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), fp.String())
}

func TestBackendDiscardRemovesStagingFile(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)
	fp := storagetest.FP(t, "staging")

	w, err := b.Writer(fp)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(b.Dir(), fp.String()[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging file should exist while writing")

	require.NoError(t, w.Discard())

	entries, err = os.ReadDir(filepath.Join(b.Dir(), fp.String()[:2]))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackendPersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := New(dir)
	require.NoError(t, err)
	fp := storagetest.FP(t, "persist")
	storagetest.Put(t, first, fp, []byte("durable"))

	second, err := New(dir)
	require.NoError(t, err)
	assert.True(t, second.Has(fp))
	assert.Equal(t, []byte("durable"), storagetest.ReadAll(t, second, fp))
}

func TestBackendFilePerm(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, WithFilePerm(0o640))
	fp := storagetest.FP(t, "perm")
	storagetest.Put(t, b, fp, []byte("perm"))

	path, err := b.Path(fp)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestBackendSizeBytes(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)
	size, err := b.SizeBytes()
	require.NoError(t, err)
	assert.Zero(t, size)

	storagetest.Put(t, b, storagetest.FP(t, "a"), []byte("12345"))
	storagetest.Put(t, b, storagetest.FP(t, "b"), []byte("123"))

	// In-flight writes are not counted.
	w, err := b.Writer(storagetest.FP(t, "c"))
	require.NoError(t, err)
	_, err = w.Write([]byte("staged"))
	require.NoError(t, err)
	defer w.Discard()

	size, err = b.SizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestBackendConcurrentShardCreation(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t)

	// All fingerprints share the "ab" shard, which does not exist yet.
	const n = 16
	start := make(chan struct{})
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			w, err := b.Writer(fingerprint.Fingerprint(fmt.Sprintf("ab%04d", i)))
			if err != nil {
				errs <- err
				return
			}
			if _, err := w.Write([]byte("x")); err != nil {
				errs <- err
				return
			}
			errs <- w.Close()
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(b.Dir(), "ab"))
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestNewTempDir(t *testing.T) {
	t.Parallel()

	b, err := New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(b.Dir()) })

	info, err := os.Stat(b.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), WithShardPrefixLen(-1))
	require.Error(t, err)

	_, err = New(t.TempDir(), WithSuffix("/x"))
	require.Error(t, err)
}

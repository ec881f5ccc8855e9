// Package storagetest provides a conformance suite for storage.Backend
// implementations.
package storagetest

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
)

// Factory returns a fresh, empty backend for a single subtest.
type Factory func(t *testing.T) storage.Backend

// FP returns a default-scheme fingerprint for name.
func FP(tb testing.TB, name string) fingerprint.Fingerprint {
	tb.Helper()
	fp, err := fingerprint.Compute(name, nil, nil)
	require.NoError(tb, err)
	return fp
}

// Put commits content under fp.
func Put(tb testing.TB, b storage.Backend, fp fingerprint.Fingerprint, content []byte) {
	tb.Helper()
	w, err := b.Writer(fp)
	require.NoError(tb, err)
	_, err = w.Write(content)
	require.NoError(tb, err)
	require.NoError(tb, w.Close())
}

// ReadAll opens fp and returns its content.
func ReadAll(tb testing.TB, b storage.Backend, fp fingerprint.Fingerprint) []byte {
	tb.Helper()
	rc, err := b.Open(fp)
	require.NoError(tb, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(tb, err)
	return data
}

// Run exercises the storage.Backend contract against backends from newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "round-trip")
		content := []byte("This is my output.")

		Put(t, b, fp, content)
		assert.Equal(t, content, ReadAll(t, b, fp))
	})

	t.Run("MultipleWrites", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "multiple-writes")

		w, err := b.Writer(fp)
		require.NoError(t, err)
		for _, chunk := range []string{"one ", "two ", "three"} {
			_, err := io.WriteString(w, chunk)
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())
		assert.Equal(t, []byte("one two three"), ReadAll(t, b, fp))
	})

	t.Run("EmptyArtifact", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "empty")

		Put(t, b, fp, nil)
		assert.True(t, b.Has(fp))
		assert.Empty(t, ReadAll(t, b, fp))
	})

	t.Run("MissThenHit", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "miss-then-hit")

		assert.False(t, b.Has(fp))
		Put(t, b, fp, []byte("x"))
		assert.True(t, b.Has(fp))
	})

	t.Run("OpenMissing", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		rc, err := b.Open(FP(t, "missing"))
		require.ErrorIs(t, err, storage.ErrNotFound)
		assert.Nil(t, rc)
	})

	t.Run("NotVisibleBeforeClose", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "staged")

		w, err := b.Writer(fp)
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)

		assert.False(t, b.Has(fp))
		_, err = b.Open(fp)
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, w.Close())
		assert.True(t, b.Has(fp))
	})

	t.Run("DiscardLeavesNoTrace", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "discard")

		w, err := b.Writer(fp)
		require.NoError(t, err)
		_, err = w.Write([]byte("abandoned"))
		require.NoError(t, err)
		require.NoError(t, w.Discard())

		assert.False(t, b.Has(fp))
		_, err = b.Open(fp)
		require.ErrorIs(t, err, storage.ErrNotFound)

		// A later attempt starts from scratch.
		Put(t, b, fp, []byte("retry"))
		assert.Equal(t, []byte("retry"), ReadAll(t, b, fp))
	})

	t.Run("FinalizedWriter", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "finalized")

		w, err := b.Writer(fp)
		require.NoError(t, err)
		_, err = w.Write([]byte("done"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("more"))
		require.ErrorIs(t, err, storage.ErrClosed)
		require.ErrorIs(t, w.Close(), storage.ErrClosed)
		require.NoError(t, w.Discard())

		assert.Equal(t, []byte("done"), ReadAll(t, b, fp))

		d, err := b.Writer(FP(t, "finalized-discard"))
		require.NoError(t, err)
		require.NoError(t, d.Discard())
		require.NoError(t, d.Discard())
		_, err = d.Write([]byte("x"))
		require.ErrorIs(t, err, storage.ErrClosed)
		require.ErrorIs(t, d.Close(), storage.ErrClosed)
	})

	t.Run("Overwrite", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "overwrite")

		Put(t, b, fp, []byte("first"))
		Put(t, b, fp, []byte("second"))
		assert.Equal(t, []byte("second"), ReadAll(t, b, fp))
	})

	t.Run("IndependentReaders", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		fp := FP(t, "readers")
		content := bytes.Repeat([]byte("0123456789"), 100)
		Put(t, b, fp, content)

		r1, err := b.Open(fp)
		require.NoError(t, err)
		defer r1.Close()
		r2, err := b.Open(fp)
		require.NoError(t, err)
		defer r2.Close()

		head := make([]byte, 10)
		_, err = io.ReadFull(r1, head)
		require.NoError(t, err)

		all2, err := io.ReadAll(r2)
		require.NoError(t, err)
		rest1, err := io.ReadAll(r1)
		require.NoError(t, err)

		assert.Equal(t, content, all2)
		assert.Equal(t, content, append(head, rest1...))
		assert.Equal(t, content, ReadAll(t, b, fp))
	})

	t.Run("ConcurrentDistinctWriters", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		const n = 16
		fps := make([]fingerprint.Fingerprint, n)
		for i := range n {
			fps[i] = FP(t, fmt.Sprintf("concurrent-%d", i))
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				w, err := b.Writer(fps[i])
				if err != nil {
					errs <- err
					return
				}
				if _, err := fmt.Fprintf(w, "payload %d", i); err != nil {
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

		for i, fp := range fps {
			assert.True(t, b.Has(fp))
			assert.Equal(t, fmt.Sprintf("payload %d", i), string(ReadAll(t, b, fp)))
		}
	})
}

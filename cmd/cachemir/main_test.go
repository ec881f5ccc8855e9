package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantRuns string
	}{
		{name: "memory", env: map[string]string{"CACHEMIR_BACKEND": "memory"}, wantRuns: "renders: 1"},
		{name: "null", env: map[string]string{"CACHEMIR_BACKEND": "null"}, wantRuns: "renders: 2"},
		{name: "compressed disk", env: map[string]string{"CACHEMIR_COMPRESS": "true", "CACHEMIR_SUFFIX": ".zst"}, wantRuns: "renders: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CACHEMIR_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var out bytes.Buffer
			require.NoError(t, run(context.Background(), &out))
			assert.Contains(t, out.String(), "This is my output.\nThis is my output.\n")
			assert.Contains(t, out.String(), tt.wantRuns)
		})
	}
}

func TestRunPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CACHEMIR_DIR", dir)

	var first, second bytes.Buffer
	require.NoError(t, run(context.Background(), &first))
	assert.Contains(t, first.String(), "renders: 1")
	assert.Contains(t, first.String(), "cache dir: "+dir)

	require.NoError(t, run(context.Background(), &second))
	assert.Contains(t, second.String(), "renders: 0")
}

func TestLoadConfigUnknownBackend(t *testing.T) {
	t.Setenv("CACHEMIR_BACKEND", "s3")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3")
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileState(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{
			name:     "densities file",
			filename: "densities.json",
			data:     []byte(`{"rice": {"name": "rice", "calories_per_gram": 1.3}}`),
		},
		{
			name:     "empty map",
			filename: "phrases.json",
			data:     []byte(`{}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.filename)
			require.NoError(t, os.WriteFile(filePath, tt.data, 0644))

			loaded, err := NewFileState(filePath).Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.data, loaded)
		})
	}

	t.Run("load nonexistent file", func(t *testing.T) {
		_, err := NewFileState(filepath.Join(tmpDir, "nonexistent.json")).Load(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save creates directories and replaces content", func(t *testing.T) {
		state := NewFileState(filepath.Join(tmpDir, "nested", "artifacts", "state.json"))
		ctx := context.Background()

		require.NoError(t, state.Save(ctx, []byte(`{"v":1}`)))
		require.NoError(t, state.Save(ctx, []byte(`{"v":2}`)))

		loaded, err := state.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":2}`), loaded)

		entries, err := os.ReadDir(filepath.Dir(state.FilePath))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files are cleaned up")
	})
}

func TestTestState(t *testing.T) {
	ctx := context.Background()

	empty := NewTestState(nil)
	_, err := empty.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, empty.Save(ctx, []byte("x")))
	got, err := empty.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
	assert.Equal(t, 1, empty.Saves())

	failing := NewTestStateWithError(assert.AnError)
	_, err = failing.Load(ctx)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, failing.Save(ctx, nil), assert.AnError)
}

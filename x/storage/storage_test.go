package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("snapshot.bin")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save("snapshot.bin", []byte("v1")))
	data, err := store.Load("snapshot.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)

	// Overwrites replace atomically.
	require.NoError(t, store.Save("snapshot.bin", []byte("v2")))
	data, err = store.Load("snapshot.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), data)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("a.bin", []byte("x")))
	require.NoError(t, store.Save("a.bin", []byte("y")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.bin", filepath.Base(entries[0].Name()))
}

func TestMemoryStoreCopiesData(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	payload := []byte("abc")
	require.NoError(t, store.Save("k", payload))
	payload[0] = 'z'

	data, err := store.Load("k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)

	_, err = store.Load("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

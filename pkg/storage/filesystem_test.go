package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.SaveStream("2026/02/blob.txt", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "2026/02/blob.txt", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestLocalStorageDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.SaveStream("blob.txt", strings.NewReader("payload"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(rel))

	_, err = store.Open(rel)
	require.Error(t, err)

	// Deleting an already absent file is not an error.
	require.NoError(t, store.Delete(rel))
}

func TestLocalStorageContainsPathTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(base, "blobs"))
	require.NoError(t, err)

	// A bare directory reference resolves to the base itself and is rejected.
	_, err = store.SaveStream("..", strings.NewReader("nope"))
	require.Error(t, err)

	// Traversal components are stripped; the write stays inside the base dir.
	_, err = store.SaveStream("../outside.txt", strings.NewReader("contained"))
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(base, "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(base, "blobs", "outside.txt"))
	assert.NoError(t, statErr)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	oldRel, err := store.SaveStream("old.txt", strings.NewReader("old"))
	require.NoError(t, err)
	freshRel, err := store.SaveStream("fresh.txt", strings.NewReader("fresh"))
	require.NoError(t, err)

	oldPath, err := store.resolve(oldRel)
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.txt"}, deleted)

	file, err := store.Open(freshRel)
	require.NoError(t, err)
	file.Close()
}

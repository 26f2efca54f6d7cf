package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Options{Backend: BackendLocal, LocalDir: dir})
	require.NoError(t, err)

	obj, err := store.Upload(context.Background(), "Guide.PDF", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(obj.ExternalID, ".pdf"))
	assert.Empty(t, obj.Link)

	data, err := os.ReadFile(filepath.Join(dir, obj.ExternalID))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Delete(context.Background(), obj.ExternalID))
	assert.ErrorIs(t, store.Delete(context.Background(), obj.ExternalID), ErrObjectNotFound)
}

func TestLocalDeleteRejectsPaths(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, store.Delete(context.Background(), "../etc/passwd"), ErrObjectNotFound)
}

func TestLocalDeleteAll(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	for _, name := range []string{"a.txt", "b.md", "c.pdf"} {
		_, err := store.Upload(context.Background(), name, "text/plain", []byte(name))
		require.NoError(t, err)
	}

	deleted, errs := store.DeleteAll(context.Background())
	assert.Equal(t, 3, deleted)
	assert.Empty(t, errs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: "s3"})
	assert.Error(t, err)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s a \\ test`, escapeQuery(`it's a \ test`))
}

package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectStorePutAndOpen(t *testing.T) {
	root := t.TempDir()
	store := NewObjectStore(root)

	hash, size, err := store.Put(strings.NewReader("test file jhgrtelkj"))
	require.NoError(t, err)
	require.Len(t, hash, 64)
	require.EqualValues(t, len("test file jhgrtelkj"), size)
	require.True(t, store.Exists(hash))

	rc, err := store.Open(hash)
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, size)
	_, err = rc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "test file jhgrtelkj", string(buf))
}

func TestObjectStoreDeduplicates(t *testing.T) {
	root := t.TempDir()
	store := NewObjectStore(root)

	h1, _, err := store.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	h2, _, err := store.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestObjectStoreMissing(t *testing.T) {
	store := NewObjectStore(t.TempDir())
	require.False(t, store.Exists(strings.Repeat("0", 64)))
	_, err := store.Open(strings.Repeat("0", 64))
	require.Error(t, err)
}

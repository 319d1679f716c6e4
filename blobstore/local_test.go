package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ifs "github.com/hupe1980/blockidx/internal/fs"
)

func TestLocalBlobStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	blobName := "_i_b/0001_v3.bf"
	data := []byte("hello world, this is a test blob")

	require.NoError(t, store.Put(ctx, blobName, data))

	_, err := os.Stat(filepath.Join(tmpDir, "_i_b", "0001_v3.bf"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	require.NoError(t, store.Put(ctx, "_sg/0002_v3.seg", []byte("seg")))
	require.NoError(t, store.Put(ctx, CurrentName, []byte("_ss/x_v3.snapshot")))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{CurrentName, "_i_b/0001_v3.bf", "_sg/0002_v3.seg"}, names)

	names, err = store.List(ctx, "_sg/")
	require.NoError(t, err)
	assert.Equal(t, []string{"_sg/0002_v3.seg"}, names)

	require.NoError(t, store.Delete(ctx, blobName))
	require.NoError(t, store.Delete(ctx, blobName), "deleting a missing blob is not an error")

	_, err = store.Open(ctx, blobName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_ReadBoundaries(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "boundary.bin", []byte("0123456789")))

	blob, err := store.Open(ctx, "boundary.bin")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(buf[:n]))

	_, err = blob.ReadAt(ctx, buf, 20)
	assert.ErrorIs(t, err, io.EOF)

	got, err := ReadAll(ctx, store, "boundary.bin")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestLocalBlobStore_Overwrite(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, CurrentName, []byte("first")))
	require.NoError(t, store.Put(ctx, CurrentName, []byte("second")))

	got, err := ReadAll(ctx, store, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocalBlobStore_FailedWriteLeavesNoBlob(t *testing.T) {
	dir := t.TempDir()
	ffs := ifs.NewFaultyFS(nil)
	ffs.AddRule(".tmp", ifs.Fault{FailAfterBytes: 4})
	store := NewLocalStore(dir, WithFileSystem(ffs))
	ctx := context.Background()

	err := store.Put(ctx, "_ss/a_v3.snapshot", []byte("a long snapshot payload"))
	require.ErrorIs(t, err, ifs.ErrInjected)

	_, err = store.Open(ctx, "_ss/a_v3.snapshot")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(filepath.Join(dir, "_ss"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")
}

func TestLocalBlobStore_FailedRenameKeepsOldBlob(t *testing.T) {
	dir := t.TempDir()
	ffs := ifs.NewFaultyFS(nil)
	store := NewLocalStore(dir, WithFileSystem(ffs))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, CurrentName, []byte("old")))

	ffs.AddRule(CurrentName, ifs.Fault{FailAfterBytes: -1, FailOnRename: true})
	require.Error(t, store.Put(ctx, CurrentName, []byte("new")))

	got, err := ReadAll(ctx, store, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{CurrentName}, names)
}

func TestLocalBlobStore_RejectsEscapingNames(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, "../outside", []byte("x")))
	_, err := store.Open(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "b", data))
	data[0] = 'x'
	require.NoError(t, store.Put(ctx, "a", []byte("1")))

	got, err := ReadAll(ctx, store, "b")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got), "Put copies its input")

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

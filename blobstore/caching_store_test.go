package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockidx/internal/cache"
	"github.com/hupe1980/blockidx/internal/resource"
)

// countingStore counts backend reads.
type countingStore struct {
	*MemoryStore
	reads atomic.Int64
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, reads: &s.reads}, nil
}

type countingBlob struct {
	Blob
	reads *atomic.Int64
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	return b.Blob.ReadAt(ctx, p, off)
}

func newTestData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	data := newTestData(1024)
	require.NoError(t, inner.Put(ctx, "test", data))

	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), nil, 256)

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(1024), blob.Size())

	// Spans pages 0..2
	buf := make([]byte, 400)
	n, err := blob.ReadAt(ctx, buf, 200)
	require.NoError(t, err)
	assert.Equal(t, 400, n)
	assert.Equal(t, data[200:600], buf)
	assert.Equal(t, int64(1), inner.reads.Load(), "contiguous missing pages are fetched together")

	// Fully cached
	n, err = blob.ReadAt(ctx, buf[:100], 300)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[300:400], buf[:100])
	assert.Equal(t, int64(1), inner.reads.Load())
}

func TestCachingStore_ReadPastEnd(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	data := newTestData(300)
	require.NoError(t, inner.Put(ctx, "test", data))

	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), nil, 256)
	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 250)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[250:], buf[:n])

	_, err = blob.ReadAt(ctx, buf, 300)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_ReadAll(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	data := newTestData(5000)
	require.NoError(t, inner.Put(ctx, "big", data))

	rc := resource.NewController(resource.Config{MaxConcurrentReads: 2})
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, rc), rc, 512)

	got, err := ReadAll(ctx, store, "big")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(5000), rc.MemoryUsage())
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, CurrentName, []byte("one")))

	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), nil, 0)

	got, err := ReadAll(ctx, store, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	require.NoError(t, store.Put(ctx, CurrentName, []byte("two")))
	got, err = ReadAll(ctx, store, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, store.Delete(ctx, CurrentName))
	_, err = store.Open(ctx, CurrentName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStore_Canceled(t *testing.T) {
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(context.Background(), "x", []byte("data")))
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), nil, 0)

	blob, err := store.Open(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = blob.ReadAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

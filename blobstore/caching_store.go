package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/blockidx/internal/cache"
	"github.com/hupe1980/blockidx/internal/resource"
)

// DefaultPageSize is the caching granularity used when none is configured.
const DefaultPageSize = 64 * 1024

// CachingStore wraps a BlobStore and caches reads in fixed-size pages.
// Backend reads go through the optional resource controller.
type CachingStore struct {
	inner    BlobStore
	cache    cache.BlockCache
	rc       *resource.Controller
	pageSize int64
}

// NewCachingStore creates a new CachingStore.
// pageSize defaults to DefaultPageSize if <= 0. rc may be nil.
func NewCachingStore(inner BlobStore, c cache.BlockCache, rc *resource.Controller, pageSize int64) *CachingStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CachingStore{
		inner:    inner,
		cache:    c,
		rc:       rc,
		pageSize: pageSize,
	}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:    b,
		store:    s,
		name:     name,
		pageSize: s.pageSize,
	}, nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(key cache.Key) bool {
		return key.Kind == cache.KindBlob && key.Path == name
	})
}

// CachingBlob wraps a Blob and serves reads from the page cache.
type CachingBlob struct {
	inner    Blob
	store    *CachingStore
	name     string
	pageSize int64
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) key(page int64) cache.Key {
	return cache.Key{Kind: cache.KindBlob, Path: b.name, Offset: uint64(page)}
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}

	want := p
	if rem := size - off; int64(len(want)) > rem {
		want = want[:rem]
	}

	startPage := off / b.pageSize
	endPage := (off + int64(len(want)) - 1) / b.pageSize

	pages, err := b.fetch(ctx, startPage, endPage)
	if err != nil {
		return 0, err
	}

	total := 0
	for i, data := range pages {
		pageStart := (startPage + int64(i)) * b.pageSize
		from := max(pageStart, off)
		to := min(pageStart+int64(len(data)), off+int64(len(want)))
		if to <= from {
			continue
		}
		total += copy(want[from-off:to-off], data[from-pageStart:])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fetch returns pages [startPage, endPage], reading contiguous runs of missing pages
// with one backend request each.
func (b *CachingBlob) fetch(ctx context.Context, startPage, endPage int64) ([][]byte, error) {
	pages := make([][]byte, endPage-startPage+1)

	type run struct{ start, count int64 }
	var missing []run
	for pg := startPage; pg <= endPage; pg++ {
		if data, ok := b.store.cache.Get(ctx, b.key(pg)); ok {
			pages[pg-startPage] = data
			continue
		}
		if n := len(missing); n > 0 && missing[n-1].start+missing[n-1].count == pg {
			missing[n-1].count++
		} else {
			missing = append(missing, run{start: pg, count: 1})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.pageSize
			byteSize := min(r.count*b.pageSize, b.Size()-byteStart)

			release, err := b.store.rc.AcquireRead(gctx, byteSize)
			if err != nil {
				return err
			}
			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			release()
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := int64(0); i < r.count; i++ {
				lo := i * b.pageSize
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+b.pageSize, int64(len(buf)))
				// Copy so a cached page does not pin the whole run.
				page := make([]byte, hi-lo)
				copy(page, buf[lo:hi])
				pages[r.start+i-startPage] = page
				b.store.cache.Set(gctx, b.key(r.start+i), page)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

package cache

import "context"

// Kind separates key spaces.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBlob         // pages of a blob
	KindIndex        // serialized block filter indexes
	KindSegment      // serialized segment records
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindIndex:
		return "index"
	case KindSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Key identifies a cached value. Blobs are immutable once written, so the path
// alone is stable across snapshots.
type Key struct {
	Kind Kind
	// Path is the blob name.
	Path string
	// Offset is the page number for KindBlob and zero otherwise.
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; caller must treat b as immutable.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

package writer

import (
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/internal/testutil"
)

func BenchmarkWriteBlock(b *testing.B) {
	for _, rows := range []int{1_000, 10_000} {
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			blk, err := testutil.NewRNG(1).Block(0, rows, 0, rows/10)
			if err != nil {
				b.Fatal(err)
			}
			w := New(blobstore.NewMemoryStore(), testutil.Schema())
			ctx := context.Background()

			b.ReportAllocs()
			for b.Loop() {
				if _, err := w.WriteBlock(ctx, blk); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Package resource bounds the memory and read bandwidth used while pruning.
//
// The Controller manages three resources:
//
//   - Memory: bytes held by caches (non-blocking, fail-fast)
//   - Concurrency: number of index and segment reads in flight (semaphore)
//   - IO: bytes per second read from the blob store (token bucket)
//
// # Memory
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//
//	if err := rc.AcquireMemory(n); err != nil {
//	    // ErrMemoryLimitExceeded: do not cache
//	}
//	defer rc.ReleaseMemory(n)
//
// # Reads
//
// AcquireRead reserves a read slot and waits for the rate limiter:
//
//	release, err := rc.AcquireRead(ctx, size)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully: they become no-ops.
package resource

package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentReads is the maximum number of blob reads in flight.
	// If 0, reads are not limited.
	MaxConcurrentReads int64

	// ReadBytesPerSec is the maximum read throughput.
	// If 0, unlimited.
	ReadBytesPerSec int64
}

// Controller manages process-wide resources.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	readSem *semaphore.Weighted // nil if unlimited
	limiter *rate.Limiter       // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxConcurrentReads > 0 {
		c.readSem = semaphore.NewWeighted(cfg.MaxConcurrentReads)
	}
	if cfg.ReadBytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.ReadBytesPerSec), int(cfg.ReadBytesPerSec))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireRead reserves a read slot and waits until the rate limit allows reading
// bytes. The returned func releases the slot and must be called exactly once.
func (c *Controller) AcquireRead(ctx context.Context, bytes int64) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	if c.readSem != nil {
		if err := c.readSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if c.readSem != nil {
			c.readSem.Release(1)
		}
	}

	if err := c.waitIO(ctx, bytes); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// waitIO consumes bytes tokens in burst-sized chunks so reads larger than one
// second of budget do not fail.
func (c *Controller) waitIO(ctx context.Context, bytes int64) error {
	if c.limiter == nil {
		return nil
	}
	burst := int64(c.limiter.Burst())
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.limiter.WaitN(ctx, int(n)); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

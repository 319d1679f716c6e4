package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Limit exceeded
	err := c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())

	release, err := c.AcquireRead(context.Background(), 1<<20)
	require.NoError(t, err)
	release()
}

func TestController_ConcurrentReads(t *testing.T) {
	c := NewController(Config{MaxConcurrentReads: 2})
	ctx := context.Background()

	var (
		inFlight atomic.Int64
		peak     atomic.Int64
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.AcquireRead(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestController_AcquireReadCanceled(t *testing.T) {
	c := NewController(Config{MaxConcurrentReads: 1})

	release, err := c.AcquireRead(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.AcquireRead(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_ReadRateLimit(t *testing.T) {
	c := NewController(Config{ReadBytesPerSec: 1000})
	ctx := context.Background()

	// The first burst is free.
	release, err := c.AcquireRead(ctx, 1000)
	require.NoError(t, err)
	release()

	start := time.Now()
	release, err = c.AcquireRead(ctx, 100)
	require.NoError(t, err)
	release()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestController_LargeReadExceedsBurst(t *testing.T) {
	c := NewController(Config{ReadBytesPerSec: 1 << 20})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release, err := c.AcquireRead(ctx, 1<<20+10)
	require.NoError(t, err)
	release()
}

package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)

	var (
		mu     sync.Mutex
		active int
		peak   int
	)

	for i := 0; i < 10; i++ {
		err := pool.Submit(context.Background(), func() {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	pool.Wait()
	assert.LessOrEqual(t, peak, 2)
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	pool := NewPool(1)

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
}

func TestPoolTrySubmit(t *testing.T) {
	pool := NewPool(1)

	release := make(chan struct{})
	require.True(t, pool.TrySubmit(func() { <-release }))

	assert.False(t, pool.TrySubmit(func() {}), "full pool rejects without blocking")

	close(release)
	pool.Wait()

	assert.True(t, pool.TrySubmit(func() {}))
	pool.Wait()
}

func TestSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepElapses(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

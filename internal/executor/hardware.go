package executor

import (
	"context"
	"time"
)

// HardwareLock guards the single physical test resource. It is a
// binary semaphore: the bench accepts exactly one active execution at
// any instant, independent of how many plans or batches are in flight.
type HardwareLock struct {
	sem chan struct{}
}

func NewHardwareLock() *HardwareLock {
	return &HardwareLock{sem: make(chan struct{}, 1)}
}

// Acquire waits up to wait for the bench to free up. It returns
// ErrResourceBusy when the window elapses and the context error when
// the caller is cancelled first.
func (l *HardwareLock) Acquire(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrResourceBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts a non-blocking acquisition.
func (l *HardwareLock) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the bench. Calling Release without holding the lock is
// a programming error and panics.
func (l *HardwareLock) Release() {
	select {
	case <-l.sem:
	default:
		panic("executor: release of unheld hardware lock")
	}
}

package worker

import (
	"context"
	"sync"
	"time"
)

// Pool bounds concurrent goroutines using a semaphore. Execution paths
// that touch the bench use a pool of size 1, making "accept request"
// and "run work" explicitly decoupled without ever running two cases
// at once above the hardware lock.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit blocks until a slot is free or the context ends, then runs fn
// on its own goroutine.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit runs fn on its own goroutine if a slot is free right now,
// reporting whether it was accepted.
func (p *Pool) TrySubmit(fn func()) bool {
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			fn()
		}()
		return true
	default:
		return false
	}
}

// Wait blocks until every submitted unit has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Sleep waits for d unless the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

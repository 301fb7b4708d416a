package billingapi

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

const DefaultPoolSize = 4

// Pool bounds the number of concurrent outbound billing API calls across the
// process. HTTP handlers and scheduler jobs share one Pool.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	size   int64
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on a pool slot, waiting for one to free up. The caller stops
// waiting when ctx ends; fn itself still receives ctx and should honour it.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	return fn(ctx)
}

// Close rejects new work and waits for in-flight calls to drain or for ctx
// to end, whichever comes first.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package indexer

import (
	"context"
	"sync"
)

// Pool is a bounded worker pool for fire-and-forget indexing tasks.
// Submitting never blocks the caller; tasks beyond the queue bound are
// rejected so a slow embedding provider cannot back up request paths.
type Pool struct {
	tasks chan func(context.Context)
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &Pool{tasks: make(chan func(context.Context), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task(context.Background())
			}
		}()
	}
	return p
}

// Submit enqueues a task. It reports false when the queue is full or the
// pool is closed; the task is dropped in that case.
func (p *Pool) Submit(task func(context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

package indexer

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestPool_DrainsOnClose(t *testing.T) {
	pool := NewPool(2, 16)

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		if ok := pool.Submit(func(ctx context.Context) { done.Add(1) }); !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}

	pool.Close()

	if got := done.Load(); got != 10 {
		t.Errorf("completed tasks = %d, want 10", got)
	}
}

func TestPool_RejectsWhenSaturated(t *testing.T) {
	pool := NewPool(1, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	// Queue holds one; the second must be rejected, not block the caller.
	if ok := pool.Submit(func(ctx context.Context) {}); !ok {
		t.Fatal("queue slot should have accepted the task")
	}
	if ok := pool.Submit(func(ctx context.Context) {}); ok {
		t.Error("saturated pool accepted a task")
	}

	close(block)
	pool.Close()
}

func TestPool_RejectsAfterClose(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Close()

	if ok := pool.Submit(func(ctx context.Context) {}); ok {
		t.Error("closed pool accepted a task")
	}
}

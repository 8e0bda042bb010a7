package queue

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1024

// MemoryQueue is a channel-backed queue for single-instance deployments and
// tests. Tasks are lost on restart.
type MemoryQueue struct {
	tasks chan Task

	mu     sync.Mutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryQueue{tasks: make(chan Task, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Task, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task, open := <-q.tasks:
		if !open {
			return Task{}, false, nil
		}
		return task, true, nil
	case <-timer.C:
		return Task{}, false, nil
	case <-ctx.Done():
		return Task{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) Length(ctx context.Context) (int64, error) {
	return int64(len(q.tasks)), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}

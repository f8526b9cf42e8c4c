package queue

import (
	"context"

	"github.com/shopcast/social-publisher/internal/domain"
)

// MemoryQueue is a bounded FIFO backed by a buffered channel.
// It is not durable: tasks are lost on restart, so it suits single-process
// deployments and tests. Use RedisQueue when tasks must survive a crash.
type MemoryQueue struct {
	tasks chan Task
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 5000
	}
	return &MemoryQueue{tasks: make(chan Task, capacity)}
}

// Enqueue is non-blocking: if the buffer is full, ErrQueueFull is returned
// immediately rather than blocking the caller.
func (q *MemoryQueue) Enqueue(_ context.Context, t Task) error {
	select {
	case q.tasks <- t:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	select {
	case t := <-q.tasks:
		return &Delivery{
			Task: t,
			nack: func(ctx context.Context) error { return q.Enqueue(ctx, t) },
		}, nil
	default:
		return nil, ErrEmpty
	}
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	return len(q.tasks), nil
}

var _ Queue = (*MemoryQueue)(nil)

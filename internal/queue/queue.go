package queue

import (
	"context"
	"errors"
	"time"

	"github.com/shopcast/social-publisher/internal/domain"
)

// ErrEmpty is returned by Dequeue when no task is ready.
var ErrEmpty = errors.New("queue empty")

// Task is the minimal data placed on the queue.
// Workers fetch the full Post from the store using the ID,
// keeping the queue lightweight and the store authoritative.
type Task struct {
	PostID string        `json:"post_id"`
	Action domain.Action `json:"action"`
}

// Queue is a FIFO work queue with competing-consumer semantics: a dequeued
// task is owned by one consumer until it is acked or nacked. A task
// re-enqueued with Enqueue goes to the back.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue never blocks; it returns ErrEmpty when nothing is ready.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Len reports tasks waiting to be delivered, including delayed ones.
	Len(ctx context.Context) (int, error)
}

// DelayedQueue is implemented by backends with a native deliver-at primitive.
type DelayedQueue interface {
	Queue
	EnqueueAt(ctx context.Context, t Task, at time.Time) error
}

// Delivery is a task leased to one consumer.
type Delivery struct {
	Task Task

	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

// Ack removes the task for good: it was processed to a final outcome.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack hands the task back for redelivery.
func (d *Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}

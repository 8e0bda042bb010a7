package queue

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrQueueFull = errors.New("queue full")

// Task is one unit of dispatch work. Only the job id travels through the
// queue; workers reload the row and re-check its state under lock.
type Task struct {
	JobID      snowflake.ID `json:"job_id"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// Queue hands dispatch tasks from the job store to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error

	// Dequeue blocks up to timeout for the next task. ok is false when the
	// wait timed out without a task.
	Dequeue(ctx context.Context, timeout time.Duration) (task Task, ok bool, err error)

	Length(ctx context.Context) (int64, error)
	Close() error
}

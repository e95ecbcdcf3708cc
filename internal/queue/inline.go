package queue

import (
	"context"

	"github.com/hudsons/salespipe/internal/logger"
)

// Handler executes one task.
type Handler func(ctx context.Context, task Task) error

// InlineQueue runs tasks in-process on a fresh goroutine. Used for local
// development and tests where no worker fleet exists; submission still
// returns immediately so the intake API keeps its non-blocking contract.
type InlineQueue struct {
	handler Handler
}

// NewInlineQueue creates an in-process dispatcher.
// Parameters:
//   - handler: function invoked for every enqueued task.
// Returns:
//   - *InlineQueue: initialized queue.
func NewInlineQueue(handler Handler) *InlineQueue {
	return &InlineQueue{handler: handler}
}

// Enqueue starts the handler on its own goroutine. The handler owns its
// error reporting through the job tracker; failures are additionally logged.
func (q *InlineQueue) Enqueue(ctx context.Context, task Task) error {
	// Detach from the request context: the work outlives the HTTP request.
	taskCtx := logger.FromContext(ctx).WithContext(context.Background())
	go func() {
		if err := q.handler(taskCtx, task); err != nil {
			logger.FromContext(taskCtx).
				WithField(logger.FieldJobID, task.JobID).
				WithError(err).
				Error("Inline task failed")
		}
	}()
	return nil
}

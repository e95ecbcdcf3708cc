// Package queue provides the task dispatch boundary between the intake API
// and the pipeline worker. The pipeline itself only depends on the Queue
// contract; transports own retry policy.
package queue

import "context"

// Task is one unit of deferred pipeline work. The raw upload lives in object
// storage; the task carries only its key.
type Task struct {
	JobID     string `json:"job_id"`
	ObjectKey string `json:"object_key"`
}

// Queue submits tasks for asynchronous execution.
type Queue interface {
	// Enqueue submits a task. Returning nil means the task is durably
	// accepted by the transport, not that it has run.
	Enqueue(ctx context.Context, task Task) error
}

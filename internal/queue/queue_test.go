package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestTaskRoundTrip(t *testing.T) {
	task := Task{JobID: "8f14e45f-ceea-467f-a0e6-8b4d9c1f2a3b", ObjectKey: "jobs/8f14e45f.csv"}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got Task
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != task {
		t.Errorf("Round trip changed task: %+v -> %+v", task, got)
	}
}

func TestInlineQueueDispatches(t *testing.T) {
	done := make(chan Task, 1)
	q := NewInlineQueue(func(ctx context.Context, task Task) error {
		done <- task
		return nil
	})

	want := Task{JobID: "job-1", ObjectKey: "jobs/job-1.csv"}
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case got := <-done:
		if got != want {
			t.Errorf("Handler got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler not invoked")
	}
}

func TestInlineQueueDetachesFromRequestContext(t *testing.T) {
	ctxErr := make(chan error, 1)
	q := NewInlineQueue(func(ctx context.Context, task Task) error {
		ctxErr <- ctx.Err()
		return nil
	})

	// A canceled request context must not cancel the task.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, Task{JobID: "job-2"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Errorf("Task context already done: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler not invoked")
	}
}

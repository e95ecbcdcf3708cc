package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis queue transport.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Key is the list key tasks are pushed to
	Key string

	// Timeout for Redis operations
	Timeout time.Duration
}

// RedisQueue is a Redis list-backed task queue: producers LPUSH JSON tasks,
// the worker BRPOPs them, so tasks are consumed in submission order.
type RedisQueue struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisQueue creates a Redis queue transport and verifies connectivity.
// Parameters:
//   - cfg: transport configuration.
// Returns:
//   - *RedisQueue: connected queue.
//   - error: non-nil if the server is unreachable.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Key == "" {
		cfg.Key = "salespipe:jobs"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{cfg: cfg, client: client}, nil
}

// Enqueue pushes a task onto the queue list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()

	if err := q.client.LPush(ctx, q.cfg.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to the given duration for the next task. A nil task with
// nil error means the wait timed out with nothing to do.
// Parameters:
//   - ctx: context bounding the wait.
//   - block: maximum time to wait for a task.
// Returns:
//   - *Task: next task, or nil on timeout.
//   - error: non-nil on transport failure or undecodable payload.
func (q *RedisQueue) Dequeue(ctx context.Context, block time.Duration) (*Task, error) {
	res, err := q.client.BRPop(ctx, block, q.cfg.Key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

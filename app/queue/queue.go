// Package queue hands recipient deliveries to redis-backed workers. The
// ready list is consumed with blocking pops; retries wait in a delayed set
// and are moved back to the ready list when their backoff expires.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/scheduler"
	"github.com/redis/go-redis/v9"
)

// DefaultName is the production queue name
const DefaultName = "wage-scheduler-queue"

// RedisQueue is the delivery task queue. Delivery is at-least-once: workers
// re-check the recipient row before sending.
type RedisQueue struct {
	rdb    *redis.Client
	name   string
	logger *log.Logger
}

func NewRedisQueue(rdb *redis.Client, name string, logger *log.Logger) *RedisQueue {
	if name == "" {
		name = DefaultName
	}
	return &RedisQueue{rdb: rdb, name: name, logger: logger}
}

func (q *RedisQueue) readyKey() string   { return q.name + ":ready" }
func (q *RedisQueue) delayedKey() string { return q.name + ":delayed" }

// Publish pushes a task onto the ready list
func (q *RedisQueue) Publish(ctx context.Context, task scheduler.DeliveryTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode delivery task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.readyKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue delivery task: %w", err)
	}
	return nil
}

// PublishDelayed parks a task in the delayed set until its backoff expires
func (q *RedisQueue) PublishDelayed(ctx context.Context, task scheduler.DeliveryTask, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode delivery task: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue delayed task: %w", err)
	}
	return nil
}

// MoveDue promotes expired delayed tasks to the ready list, returning how
// many were moved
func (q *RedisQueue) MoveDue(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan delayed tasks: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, q.readyKey(), m)
		pipe.ZRem(ctx, q.delayedKey(), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to promote delayed tasks: %w", err)
	}
	return len(members), nil
}

// Pop blocks up to timeout for the next ready task. A nil task with nil
// error means the timeout elapsed.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*scheduler.DeliveryTask, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.readyKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop delivery task: %w", err)
	}
	// BRPop returns [key, value]
	var task scheduler.DeliveryTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to decode delivery task: %w", err)
	}
	return &task, nil
}

// Depth returns the ready and delayed queue sizes
func (q *RedisQueue) Depth(ctx context.Context) (ready, delayed int64, err error) {
	ready, err = q.rdb.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read delayed depth: %w", err)
	}
	return ready, delayed, nil
}

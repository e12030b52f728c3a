// Package redis implements the prediction and task-status caches on Redis.
//
// Every entry is written as a SET plus EXPIRE pipeline so the TTL applies
// atomically with the payload. Readers treat absent keys, undecodable
// payloads, and transport failures alike as misses; the cache is never a
// source of truth.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/observability"
	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

const (
	predictionTTL  = 24 * time.Hour
	taskPendingTTL = 15 * time.Second
	taskDoneTTL    = 24 * time.Hour
)

func predictionKey(itemID int64) string { return fmt.Sprintf("prediction:%d", itemID) }
func taskKey(taskID int64) string       { return fmt.Sprintf("moderation_result:%d", taskID) }

// NewClient builds a Redis client with the service's timeout policy.
func NewClient(addr string, db int, connectTimeout, readTimeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  connectTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: readTimeout,
	})
}

// PredictionCache caches synchronous scoring results per listing.
type PredictionCache struct{ rdb *redis.Client }

// NewPredictionCache constructs a PredictionCache over the given client.
func NewPredictionCache(rdb *redis.Client) *PredictionCache { return &PredictionCache{rdb: rdb} }

// Get returns the cached prediction for the listing, or nil on a miss.
func (c *PredictionCache) Get(ctx context.Context, itemID int64) (*domain.Prediction, error) {
	raw, err := c.rdb.Get(ctx, predictionKey(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.CacheMiss("prediction")
			return nil, nil
		}
		observability.CacheError("prediction")
		return nil, fmt.Errorf("op=cache.prediction.get: %w", err)
	}
	var p domain.Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		observability.CacheError("prediction")
		return nil, fmt.Errorf("op=cache.prediction.get: decode: %w", err)
	}
	observability.CacheHit("prediction")
	return &p, nil
}

// Set stores the prediction for 24 hours.
func (c *PredictionCache) Set(ctx context.Context, itemID int64, p domain.Prediction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("op=cache.prediction.set: encode: %w", err)
	}
	if err := setWithTTL(ctx, c.rdb, predictionKey(itemID), payload, predictionTTL); err != nil {
		observability.CacheError("prediction")
		return fmt.Errorf("op=cache.prediction.set: %w", err)
	}
	return nil
}

// Delete drops the cached prediction for the listing.
func (c *PredictionCache) Delete(ctx context.Context, itemID int64) error {
	if err := c.rdb.Del(ctx, predictionKey(itemID)).Err(); err != nil {
		observability.CacheError("prediction")
		return fmt.Errorf("op=cache.prediction.delete: %w", err)
	}
	return nil
}

// TaskCache caches task-status views per task id. Pending entries carry a
// short TTL so state transitions become visible quickly; terminal entries
// are stable and live for a day.
type TaskCache struct{ rdb *redis.Client }

// NewTaskCache constructs a TaskCache over the given client.
func NewTaskCache(rdb *redis.Client) *TaskCache { return &TaskCache{rdb: rdb} }

// Get returns the cached status view for the task, or nil on a miss.
func (c *TaskCache) Get(ctx context.Context, taskID int64) (*domain.TaskStatusView, error) {
	raw, err := c.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.CacheMiss("task")
			return nil, nil
		}
		observability.CacheError("task")
		return nil, fmt.Errorf("op=cache.task.get: %w", err)
	}
	var v domain.TaskStatusView
	if err := json.Unmarshal(raw, &v); err != nil {
		observability.CacheError("task")
		return nil, fmt.Errorf("op=cache.task.get: decode: %w", err)
	}
	// A payload without the identifying fields is as good as absent.
	if v.TaskID == 0 || v.Status == "" {
		observability.CacheMiss("task")
		return nil, nil
	}
	observability.CacheHit("task")
	return &v, nil
}

// Set stores the status view with a TTL derived from the task status.
func (c *TaskCache) Set(ctx context.Context, v domain.TaskStatusView) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("op=cache.task.set: encode: %w", err)
	}
	ttl := taskPendingTTL
	if v.Status.Terminal() {
		ttl = taskDoneTTL
	}
	if err := setWithTTL(ctx, c.rdb, taskKey(v.TaskID), payload, ttl); err != nil {
		observability.CacheError("task")
		return fmt.Errorf("op=cache.task.set: %w", err)
	}
	return nil
}

// Delete drops the cached status view for the task.
func (c *TaskCache) Delete(ctx context.Context, taskID int64) error {
	if err := c.rdb.Del(ctx, taskKey(taskID)).Err(); err != nil {
		observability.CacheError("task")
		return fmt.Errorf("op=cache.task.delete: %w", err)
	}
	return nil
}

func setWithTTL(ctx context.Context, rdb *redis.Client, key string, payload []byte, ttl time.Duration) error {
	pipe := rdb.Pipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

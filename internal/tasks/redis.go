package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisQueue keeps task ids in a sorted set scored by ETA and task bodies in
// a hash. Claiming is a ZREM, so only one worker wins a task.
type RedisQueue struct {
	client  *redis.Client
	dueKey  string
	bodyKey string
}

func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "inapppay:tasks"
	}
	return &RedisQueue{client: client, dueKey: prefix + ":due", bodyKey: prefix + ":body"}
}

func (q *RedisQueue) Push(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.bodyKey, t.ID, raw)
		p.ZAdd(ctx, q.dueKey, redis.Z{Score: float64(t.ETA.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("push task %s: %w", t.ID, err)
	}
	return nil
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.ZRangeByScore(ctx, q.dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	// A task is gone from the sorted set once ZREM succeeds, so every claimed
	// task is returned, put back, or reported as dropped. Failures are
	// collected and the rest of the batch still runs.
	var out []Task
	var errs []error
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.dueKey, id).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("claim task %s: %w", id, err))
			continue
		}
		if removed == 0 {
			continue
		}
		raw, err := q.client.HGet(ctx, q.bodyKey, id).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			errs = append(errs, q.release(ctx, id, now, fmt.Errorf("load task %s: %w", id, err)))
			continue
		}
		_ = q.client.HDel(ctx, q.bodyKey, id).Err()

		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			errs = append(errs, fmt.Errorf("decode task %s: dropped: %w", id, err))
			continue
		}
		out = append(out, t)
	}
	return out, errors.Join(errs...)
}

// release puts a claimed task whose body is still stored back on the due set.
func (q *RedisQueue) release(ctx context.Context, id string, now time.Time, cause error) error {
	if err := q.client.ZAdd(ctx, q.dueKey, redis.Z{Score: float64(now.UnixMilli()), Member: id}).Err(); err != nil {
		return errors.Join(cause, fmt.Errorf("release task %s: %w", id, err))
	}
	return cause
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SET NX lock with an owner token, released only by its
// owner.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "inapppay:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may be cancelled by now.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
	}
	return release, true, nil
}

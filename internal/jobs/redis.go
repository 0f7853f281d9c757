package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each job as a JSON string under prefix+id and indexes ids
// in a sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "wfb:job:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }
func (s *RedisStore) indexKey() string     { return s.prefix + "index" }

func (s *RedisStore) Put(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, s.key(job.ID), string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set job %s: %w", job.ID, err)
	}
	z := &redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID}
	if err := s.client.ZAdd(ctx, s.indexKey(), z).Err(); err != nil {
		return fmt.Errorf("redis index job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("redis get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// List returns up to limit jobs, newest first. Ids whose payload has expired
// are removed from the index as they are met, and the scan continues past
// them so the page stays full.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Job, error) {
	out := []Job{}
	start := int64(0)
	for {
		stop := int64(-1)
		if limit > 0 {
			stop = start + int64(limit-len(out)) - 1
		}
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list jobs: %w", err)
		}
		if len(ids) == 0 {
			return out, nil
		}
		jobs, stale, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs...)
		if len(stale) > 0 {
			if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
				return nil, fmt.Errorf("redis prune index: %w", err)
			}
		}
		if limit <= 0 || len(out) >= limit || int64(len(ids)) < stop-start+1 {
			return out, nil
		}
		start += int64(len(jobs))
	}
}

// load fetches the payloads of ids and reports the ids that have expired.
func (s *RedisStore) load(ctx context.Context, ids []string) ([]Job, []interface{}, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis mget jobs: %w", err)
	}
	jobs := make([]Job, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			return nil, nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}
	return jobs, stale, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix = "cw:doc:"
	redisPathIndex = "cw:paths"
)

// RedisStore persists documents as JSON strings keyed by path, with a
// lexicographic sorted-set index for ordered prefix scans.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Put(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+path, raw, 0)
	pipe.ZAdd(ctx, redisPathIndex, &redis.Z{Score: 0, Member: path})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, path string, dest any) error {
	raw, err := r.client.Get(ctx, redisKeyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (r *RedisStore) List(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	rng := &redis.ZRangeBy{Min: "[" + prefix, Max: "(" + prefix + "\xff"}
	var paths []string
	var err error
	if opts.Descending {
		// ZRevRangeByLex swaps the bound meaning.
		rng.Min, rng.Max = "["+prefix, "("+prefix+"\xff"
		paths, err = r.client.ZRevRangeByLex(ctx, redisPathIndex, &redis.ZRangeBy{
			Min: rng.Min, Max: rng.Max,
		}).Result()
	} else {
		paths, err = r.client.ZRangeByLex(ctx, redisPathIndex, rng).Result()
	}
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(paths) > opts.Limit {
		paths = paths[:opts.Limit]
	}
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		raw, err := r.client.Get(ctx, redisKeyPrefix+p).Bytes()
		if errors.Is(err, redis.Nil) {
			// Index entry without a document means a concurrent delete.
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: p, Value: raw})
	}
	return entries, nil
}

func (r *RedisStore) Delete(ctx context.Context, path string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+path)
	pipe.ZRem(ctx, redisPathIndex, path)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Close() error { return r.client.Close() }

package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "snapconvert:result:"
const redisIndexKey = "snapconvert:results"

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps results as Redis hashes so several instances sharing a
// TMP_DIR volume can serve each other's downloads.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func resultKey(id string) string {
	return redisKeyPrefix + id
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, res Result) error {
	fields := map[string]interface{}{
		"file_path":      res.FilePath,
		"original_name":  res.OriginalName,
		"converted_name": res.ConvertedName,
		"content_type":   res.ContentType,
		"size":           res.Size,
		"created_at":     res.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, resultKey(res.ID), fields)
		pipe.SAdd(ctx, redisIndexKey, res.ID)
		return nil
	})
	return err
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Result, error) {
	fields, err := s.client.HGetAll(ctx, resultKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if len(fields) == 0 {
		return Result{}, ErrNotFound
	}

	res := Result{
		ID:            id,
		FilePath:      fields["file_path"],
		OriginalName:  fields["original_name"],
		ConvertedName: fields["converted_name"],
		ContentType:   fields["content_type"],
	}
	if res.Size, err = strconv.ParseInt(fields["size"], 10, 64); err != nil {
		return Result{}, fmt.Errorf("decode size for %s: %w", id, err)
	}
	if res.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return Result{}, fmt.Errorf("decode created_at for %s: %w", id, err)
	}
	return res, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, resultKey(id))
		pipe.SRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, redisIndexKey).Result()
	return int(n), err
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// ErrMiss is returned by a Store that holds no value for a key.
var ErrMiss = errors.New("cache miss")

// Store is a shared result tier consulted by the cache leader before computing.
type Store interface {
	Get(ctx context.Context, key string) (*models.QueryResult, error)
	Set(ctx context.Context, key string, result *models.QueryResult, ttl time.Duration) error
}

// NewRedisClient creates a new Redis client with the given configuration.
// Returns nil if Redis is not configured (host is empty).
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps msgpack-encoded results in Redis with a per-key TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client; prefix is prepended to every key.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the stored result or ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.QueryResult, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var result models.QueryResult
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, nil
}

// Set stores result under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, result *models.QueryResult, ttl time.Duration) error {
	data, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

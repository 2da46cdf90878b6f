package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 100

// RedisStore is a shared byte store backed by redis. Every key is written
// under KeyPrefix so prefix deletes never touch foreign data.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

// NewRedisStore validates cfg and builds a universal client for it.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.ScanCount), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, scanCount int64) *RedisStore {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &RedisStore{client: client, prefix: prefix, scanCount: scanCount}
}

// Get returns the payload stored under key or ErrCacheMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return data, nil
}

// Set stores value under key. A zero ttl keeps the entry until deleted.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Keys are deleted through a pipeline so
// cluster deployments never see cross slot commands.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, s.prefix+key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeletePrefix scans for keys starting with prefix and deletes them.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	match := escapeGlob(s.prefix+prefix) + "*"

	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return s.deleteMatching(ctx, node, match)
		})
	}
	return s.deleteMatching(ctx, s.client, match)
}

// deleteMatching collects every key matching the pattern before deleting
// any. Some servers track the SCAN cursor as an offset, so deleting while
// iterating would skip keys.
func (s *RedisStore) deleteMatching(ctx context.Context, client redis.Cmdable, match string) error {
	var keys []string
	iter := client.Scan(ctx, 0, match, s.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %q: %w", match, err)
	}

	for len(keys) > 0 {
		n := min(int64(len(keys)), s.scanCount)
		pipe := client.Pipeline()
		for _, key := range keys[:n] {
			pipe.Del(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis delete prefix: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

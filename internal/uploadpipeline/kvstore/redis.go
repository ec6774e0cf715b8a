package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts a go-redis client to the Store contract.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing go-redis client. The caller owns the
// client's lifecycle (including Close).
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("kvstore: get %q: %w", key, err)
	}

	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("kvstore: set %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: setnx %q: %w", key, err)
	}

	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	err := s.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("kvstore: delete %v: %w", keys, err)
	}

	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: exists %q: %w", key, err)
	}

	return n > 0, nil
}

func (s *RedisStore) LPush(ctx context.Context, key, value string) error {
	err := s.client.LPush(ctx, key, value).Err()
	if err != nil {
		return fmt.Errorf("kvstore: lpush %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) LPop(ctx context.Context, key string) (string, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("kvstore: lpop %q: %w", key, err)
	}

	return v, nil
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kvstore: llen %q: %w", key, err)
	}

	return n, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}

	err := s.client.SAdd(ctx, key, args...).Err()
	if err != nil {
		return fmt.Errorf("kvstore: sadd %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}

	err := s.client.SRem(ctx, key, args...).Err()
	if err != nil {
		return fmt.Errorf("kvstore: srem %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kvstore: smembers %q: %w", key, err)
	}

	return members, nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kvstore: scard %q: %w", key, err)
	}

	return n, nil
}

func (s *RedisStore) SRandMember(ctx context.Context, key string, count int64) ([]string, error) {
	members, err := s.client.SRandMemberN(ctx, key, count).Result()
	if err != nil {
		return nil, fmt.Errorf("kvstore: srandmember %q: %w", key, err)
	}

	return members, nil
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: sismember %q: %w", key, err)
	}

	return ok, nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}

	err := s.client.HSet(ctx, key, args...).Err()
	if err != nil {
		return fmt.Errorf("kvstore: hset %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kvstore: hgetall %q: %w", key, err)
	}

	if len(m) == 0 {
		return nil, ErrNotFound
	}

	return m, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := s.client.Expire(ctx, key, ttl).Err()
	if err != nil {
		return fmt.Errorf("kvstore: expire %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("kvstore: incrby %q: %w", key, err)
	}

	return n, nil
}

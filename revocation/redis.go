package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "twostep:revoked"

// RedisStore keeps revocations in a sorted set scored by revoke time in
// milliseconds, so every instance sharing the Redis sees the same entries and
// they outlive process restarts.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

// NewRedisStore stores entries under key; an empty key uses
// "twostep:revoked".
func NewRedisStore(client redis.UniversalClient, key string, now func() time.Time) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, key: key, now: now}
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: Digest(token),
	}).Err()
	if err != nil {
		return fmt.Errorf("revocation: zadd: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	err := s.client.ZScore(ctx, s.key, Digest(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revocation: zscore: %w", err)
	}
	return true, nil
}

func (s *RedisStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("revocation: zremrangebyscore: %w", err)
	}
	return int(n), nil
}

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, clock *testClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", clock.Now), mr
}

func TestRedisStoreRevokeAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Unix(1_700_000_000, 0))
	s, mr := newRedisStore(t, clock)

	require.NoError(t, s.Revoke(ctx, "old"))
	clock.Advance(2 * time.Hour)
	require.NoError(t, s.Revoke(ctx, "recent"))

	ok, err := s.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := mr.ZMembers(defaultRedisKey)
	require.NoError(t, err)
	assert.Contains(t, members, Digest("old"))
	assert.NotContains(t, members, "old")

	removed, err := s.PurgeOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ok, _ = s.IsRevoked(ctx, "old")
	assert.False(t, ok)
	ok, _ = s.IsRevoked(ctx, "recent")
	assert.True(t, ok)
}

func TestRedisStoreUnknownToken(t *testing.T) {
	s, _ := newRedisStore(t, newTestClock(time.Now()))

	ok, err := s.IsRevoked(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Revoke(context.Background(), ""), ErrEmptyToken)
}

func TestRedisStoreBackendFailure(t *testing.T) {
	s, mr := newRedisStore(t, newTestClock(time.Now()))
	mr.SetError("boom")

	_, err := s.IsRevoked(context.Background(), "tok")
	assert.Error(t, err)
	assert.Error(t, s.Revoke(context.Background(), "tok"))
}

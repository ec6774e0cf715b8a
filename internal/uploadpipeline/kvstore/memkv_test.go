package kvstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
)

func TestGetSet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestGet_MissingKeyReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestSetNX_OnlySetsOnce(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	ok, err := s.SetNX(ctx, "k", "first", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "second", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestSet_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))

	time.Sleep(40 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestExpire_SetsTTLOnExistingKey(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Expire(ctx, "k", 20*time.Millisecond))

	time.Sleep(40 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestDelete_RemovesAcrossAllTypes(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.SAdd(ctx, "k", "m"))
	require.NoError(t, s.HSet(ctx, "k", "f", "v"))
	require.NoError(t, s.LPush(ctx, "k", "e"))

	require.NoError(t, s.Delete(ctx, "k"))

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExists_AcrossTypes(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SAdd(ctx, "k", "m"))

	exists, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLPushLPopLLen(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.LPush(ctx, "q", "a"))
	require.NoError(t, s.LPush(ctx, "q", "b"))

	n, err := s.LLen(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.LPop(ctx, "q")
	require.NoError(t, err)
	_, err = s.LPop(ctx, "q")
	require.NoError(t, err)

	_, err = s.LPop(ctx, "q")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestSetOperations(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.SAdd(ctx, "set", "a", "b", "c"))

	card, err := s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)

	isMember, err := s.SIsMember(ctx, "set", "b")
	require.NoError(t, err)
	assert.True(t, isMember)

	require.NoError(t, s.SRem(ctx, "set", "b"))

	isMember, err = s.SIsMember(ctx, "set", "b")
	require.NoError(t, err)
	assert.False(t, isMember)

	members, err := s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, members)
}

func TestSRandMember_RespectsCount(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.SAdd(ctx, "set", "a", "b", "c"))

	members, err := s.SRandMember(ctx, "set", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(members), 2)
}

func TestHSetHGetAll(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	require.NoError(t, s.HSet(ctx, "h", "f1", "v1", "f2", "v2"))

	fields, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, fields)
}

func TestHGetAll_MissingKeyReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	_, err := s.HGetAll(ctx, "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestIncr_AccumulatesDelta(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemStore()

	v, err := s.Incr(ctx, "counter", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = s.Incr(ctx, "counter", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb), mr
}

func TestStore_HashRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "ql:j:jid1", map[string]interface{}{
		"klass": "Foo", "priority": "5",
	}))

	fields, err := s.HGetAll(ctx, "ql:j:jid1")
	require.NoError(t, err)
	require.Equal(t, "Foo", fields["klass"])
	require.Equal(t, "5", fields["priority"])

	v, ok, err := s.HGet(ctx, "ql:j:jid1", "klass")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Foo", v)

	_, ok, err = s.HGet(ctx, "ql:j:jid1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_SortedSetOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "ql:q:q-work", 5, "hi"))
	require.NoError(t, s.ZAdd(ctx, "ql:q:q-work", 0, "lo"))

	top, err := s.ZRevRange(ctx, "ql:q:q-work", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"hi", "lo"}, top)

	n, err := s.ZCard(ctx, "ql:q:q-work")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, s.ZRem(ctx, "ql:q:q-work", "hi"))
	n, err = s.ZCard(ctx, "ql:q:q-work")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestStore_ZRangeByScore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "ql:q:q-scheduled", 10, "a"))
	require.NoError(t, s.ZAdd(ctx, "ql:q:q-scheduled", 20, "b"))
	require.NoError(t, s.ZAdd(ctx, "ql:q:q-scheduled", 30, "c"))

	due, err := s.ZRangeByScore(ctx, "ql:q:q-scheduled", 0, 20, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, due)
}

func TestStore_ListFailedGroup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LPush(ctx, "ql:f:failed-retries-q", "j1"))
	require.NoError(t, s.LPush(ctx, "ql:f:failed-retries-q", "j2"))

	all, err := s.LRange(ctx, "ql:f:failed-retries-q")
	require.NoError(t, err)
	require.Equal(t, []string{"j2", "j1"}, all)

	popped, err := s.PopTail(ctx, "ql:f:failed-retries-q", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"j1"}, popped)
}

func TestStore_SetMembership(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "ql:paused_queues", "q1"))
	ok, err := s.SIsMember(ctx, "ql:paused_queues", "q1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SRem(ctx, "ql:paused_queues", "q1"))
	ok, err = s.SIsMember(ctx, "ql:paused_queues", "q1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_Publish(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub := s.Client().Subscribe(ctx, "put")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s.Publish(ctx, "put", map[string]string{"jid": "j1"})
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"jid":"j1"}`, msg.Payload)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T) (PresenceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisPresence(rdb), mr
}

func TestAddAndListMembers(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPresence(t)

	require.NoError(t, p.AddMember(ctx, "doc-1", "u-a", "Alice", time.Minute))
	require.NoError(t, p.AddMember(ctx, "doc-1", "u-b", "Bob", time.Minute))
	// 同一成员重复 Add 等价于刷新 TTL，不产生重复
	require.NoError(t, p.AddMember(ctx, "doc-1", "u-a", "Alice", time.Minute))

	members, err := p.GetAliveMembers(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, members, 2)

	byID := map[string]string{}
	for _, m := range members {
		byID[m.UserID] = m.Username
	}
	assert.Equal(t, "Alice", byID["u-a"])
	assert.Equal(t, "Bob", byID["u-b"])
}

func TestExpiredMembersAreSwept(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPresence(t)

	// 逻辑 TTL 已过期（score 在过去）
	require.NoError(t, p.AddMember(ctx, "doc-1", "u-old", "Old", -time.Minute))
	require.NoError(t, p.AddMember(ctx, "doc-1", "u-new", "New", time.Minute))

	members, err := p.GetAliveMembers(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u-new", members[0].UserID)
}

func TestRemoveMemberClearsNameAndCursor(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPresence(t)

	require.NoError(t, p.AddMember(ctx, "doc-1", "u-a", "Alice", time.Minute))
	require.NoError(t, p.SetCursor(ctx, "doc-1", "u-a", []byte(`{"pos":5}`), time.Minute))

	cursor, err := p.GetCursor(ctx, "doc-1", "u-a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pos":5}`, string(cursor))

	require.NoError(t, p.RemoveMember(ctx, "doc-1", "u-a"))

	members, err := p.GetAliveMembers(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = p.GetCursor(ctx, "doc-1", "u-a")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestEmptyRoom(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPresence(t)

	members, err := p.GetAliveMembers(ctx, "doc-none")
	require.NoError(t, err)
	assert.Empty(t, members)
}

package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 把房间成员与光标镜像到 Redis，供网关等其他服务读取。
// 镜像是旁路数据：权威在场状态在协作服务内存里。
type PresenceCache interface {
	AddMember(ctx context.Context, documentID, userID, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, documentID, userID string) error
	GetAliveMembers(ctx context.Context, documentID string) ([]Member, error)
	SetCursor(ctx context.Context, documentID, userID string, cursor []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, documentID, userID string) ([]byte, error)
}

type Member struct {
	UserID   string
	Username string
}

type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember 写入/刷新成员。score 使用 expireAt（Unix 秒）表达逻辑 TTL，
// 刷新 TTL 重复调用即可。
func (p *redisPresence) AddMember(ctx context.Context, documentID, userID, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(documentID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(documentID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

// RemoveMember 显式摘除成员（leave/断连路径），连同名字与光标一起清理。
func (p *redisPresence) RemoveMember(ctx context.Context, documentID, userID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(documentID), userID)
	tx.HDel(ctx, namesKey(documentID), userID)
	tx.Del(ctx, cursorKey(documentID, userID))
	_, err := tx.Exec(ctx)
	return err
}

// 清理过期成员并返回仍存活的成员。约定 score=expireAt，<= now 视为过期。
var sweepScript = redis.NewScript(`
-- KEYS[1] = roomKey(documentID)
-- KEYS[2] = namesKey(documentID)
-- ARGV[1] = now (unix seconds)
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) GetAliveMembers(ctx context.Context, documentID string) ([]Member, error) {
	now := time.Now().Unix()

	_, err := sweepScript.Run(ctx, p.rdb, []string{roomKey(documentID), namesKey(documentID)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(documentID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(documentID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]Member, 0, len(aliveIDs))
	for i, id := range aliveIDs {
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, Member{UserID: id, Username: name})
	}
	return members, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, documentID, userID string, cursor []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(documentID, userID), cursor, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, documentID, userID string) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(documentID, userID)).Bytes()
}

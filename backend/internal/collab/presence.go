package collab

import (
	"encoding/json"
	"sort"
	"time"
)

// 在线状态仅用于前端展示，不参与清退。成员只会因显式 leave/断连被移除，
// 不会因心跳超时被后台清扫（避免网络抖动导致误踢）。
const (
	StatusActive   = "active"
	StatusAway     = "away"
	StatusInactive = "inactive"

	activeWindow = 30 * time.Second
	awayWindow   = 300 * time.Second
)

// User 是一个已连接参与者的身份。身份由上游鉴权边界提供，本服务不做校验。
type User struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
	LastSeen time.Time       `json:"lastSeen"`
}

// Status 按 lastSeen 距今的时长分级。
func (u User) Status(now time.Time) string {
	since := now.Sub(u.LastSeen)
	switch {
	case since < activeWindow:
		return StatusActive
	case since < awayWindow:
		return StatusAway
	default:
		return StatusInactive
	}
}

// roster 是单文档的协作者集合，只允许在会话锁内访问。
type roster map[string]*User

// join 新增或更新成员（同一 userId 重复 join 为幂等更新，不产生重复项）。
func (r roster) join(u User, now time.Time) {
	if existing, ok := r[u.ID]; ok {
		existing.Name = u.Name
		existing.LastSeen = now
		if len(u.Cursor) > 0 {
			existing.Cursor = u.Cursor
		}
		return
	}
	u.LastSeen = now
	r[u.ID] = &u
}

func (r roster) leave(userID string) {
	delete(r, userID)
}

// touch 刷新成员的 lastSeen；非成员时无操作。
func (r roster) touch(userID string, now time.Time) {
	if u, ok := r[userID]; ok {
		u.LastSeen = now
	}
}

// setCursor 更新成员光标；非成员时静默忽略（过期客户端可能与 leave 竞争）。
func (r roster) setCursor(userID string, cursor json.RawMessage, now time.Time) bool {
	u, ok := r[userID]
	if !ok {
		return false
	}
	u.Cursor = cursor
	u.LastSeen = now
	return true
}

func (r roster) contains(userID string) bool {
	_, ok := r[userID]
	return ok
}

// list 返回按 userId 排序的成员快照（拷贝，调用方可在锁外持有）。
func (r roster) list() []User {
	out := make([]User, 0, len(r))
	for _, u := range r {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

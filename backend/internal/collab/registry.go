package collab

import "sync"

// syncSessions 是 documentID -> *Session 的并发注册表。
// 注册表锁只保护 map 本身；会话内部状态由各自的互斥锁保护。
type syncSessions struct {
	mu sync.RWMutex
	m  map[string]*Session
}

func newSyncSessions() syncSessions {
	return syncSessions{m: make(map[string]*Session)}
}

func (ss *syncSessions) get(documentID string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.m[documentID]
}

// getOrInsert 先查再建，写锁内二次检查避免并发重复创建。
func (ss *syncSessions) getOrInsert(documentID string, create func() *Session) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.m[documentID]; ok {
		return s
	}
	s := create()
	ss.m[documentID] = s
	return s
}

func (ss *syncSessions) remove(documentID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.m, documentID)
}

func (ss *syncSessions) all() map[string]*Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make(map[string]*Session, len(ss.m))
	for k, v := range ss.m {
		out[k] = v
	}
	return out
}

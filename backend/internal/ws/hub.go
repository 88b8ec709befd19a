package ws

import (
	"sync"

	"collabService/backend/internal/collab"
)

// Hub 维护 documentID -> 连接集合 的房间表，并实现 collab.Broadcaster。
// 房间里存的是连接而不是 userID：同一用户可开多个标签页/设备，广播要逐连接发。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接挂入文档房间。必须在 Coordinator.Join 之前调用，
// 否则 join 期间的单播/广播会错过该连接。
func (h *Hub) Join(documentID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[documentID] == nil {
		h.rooms[documentID] = make(map[*Conn]struct{})
	}
	h.rooms[documentID][c] = struct{}{}
}

// Leave 将连接从文档房间移除；房间空了就删掉条目。
func (h *Hub) Leave(documentID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[documentID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, documentID)
		}
	}
}

// Broadcast 推给房间内除 exceptUserID 外的所有连接；exceptUserID 为空则推给全部。
// 入队是非阻塞的（慢连接丢消息），所以可以安全地在会话锁内调用。
func (h *Hub) Broadcast(documentID, exceptUserID string, evt collab.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[documentID] {
		if exceptUserID != "" && c.userID == exceptUserID {
			continue
		}
		c.enqueue(evt)
	}
}

// Unicast 只推给房间内指定用户的连接（该用户的全部标签页）。
func (h *Hub) Unicast(documentID, userID string, evt collab.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[documentID] {
		if c.userID == userID {
			c.enqueue(evt)
		}
	}
}

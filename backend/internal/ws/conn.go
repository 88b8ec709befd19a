package ws

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabService/backend/internal/collab"
)

const sendQueueSize = 32

// Conn 是一条已鉴权的 WebSocket 连接：readLoop 解析入站事件并路由给协调器，
// writeLoop 消费出站队列。一条连接同一时刻最多加入一个文档。
type Conn struct {
	ws   *websocket.Conn
	hub  *Hub
	co   *collab.Coordinator
	log  *zap.Logger
	send chan collab.Event

	// 鉴权边界提供的身份，入站消息里的 userId 一律以此为准
	userID   string
	username string

	documentID string
}

func NewConn(ws *websocket.Conn, hub *Hub, co *collab.Coordinator, userID, username string, log *zap.Logger) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		co:       co,
		log:      log,
		send:     make(chan collab.Event, sendQueueSize),
		userID:   userID,
		username: username,
	}
}

// enqueue 非阻塞入队；队列满（慢消费者）时丢弃，绝不阻塞广播方。
func (c *Conn) enqueue(evt collab.Event) {
	select {
	case c.send <- evt:
	default:
		c.log.Warn("send queue full, dropping event",
			zap.String("userId", c.userID),
			zap.String("event", evt.EventType()))
	}
}

// readLoop 阻塞消费入站消息直到连接关闭。退出时视同显式 leave：
// 摘除在场状态并释放可能持有的锁（锁和 presence 永不悬挂）。
func (c *Conn) readLoop(ctx context.Context) {
	// 断连时请求上下文可能已取消，清理用不可取消的派生 ctx
	defer func() {
		c.detach(context.WithoutCancel(ctx))
		close(c.send)
	}()
	for {
		var msg collab.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.log.Debug("connection closed",
				zap.String("userId", c.userID),
				zap.String("documentId", c.documentID),
				zap.Error(err))
			return
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Conn) dispatch(ctx context.Context, msg collab.ClientMessage) {
	switch msg.Type {
	case collab.EventJoinDocument:
		if msg.DocumentID == "" {
			return
		}
		// 换房间时先离开旧房间
		if c.documentID != "" && c.documentID != msg.DocumentID {
			c.detach(ctx)
		}
		c.documentID = msg.DocumentID
		user := collab.User{ID: c.userID, Name: c.username}
		if msg.User != nil && msg.User.Name != "" {
			user.Name = msg.User.Name
		}
		c.hub.Join(c.documentID, c)
		c.co.Join(ctx, c.documentID, user)

	case collab.EventLeaveDocument:
		c.detach(ctx)

	case collab.EventContentChange:
		if c.documentID == "" {
			return
		}
		// 拒绝（他人持锁）时对端静默：不回错误事件，只在服务端记录
		_ = c.co.ContentChange(ctx, c.documentID, c.userID, msg.Operation)

	case collab.EventCursorMove:
		if c.documentID == "" {
			return
		}
		c.co.CursorMove(ctx, c.documentID, c.userID, msg.Cursor)

	case collab.EventLockDocument:
		if c.documentID == "" {
			return
		}
		_ = c.co.Lock(ctx, c.documentID, c.userID)

	case collab.EventUnlockDocument:
		if c.documentID == "" {
			return
		}
		_ = c.co.Unlock(ctx, c.documentID, c.userID)

	default:
		c.log.Debug("ignoring unknown message type",
			zap.String("type", msg.Type), zap.String("userId", c.userID))
	}
}

// detach 把连接摘出当前房间并通知协调器 leave。幂等。
func (c *Conn) detach(ctx context.Context) {
	if c.documentID == "" {
		return
	}
	c.hub.Leave(c.documentID, c)
	c.co.Leave(ctx, c.documentID, c.userID)
	c.documentID = ""
}

// writeLoop 持续把出站事件写回连接，send 关闭后退出。
func (c *Conn) writeLoop() {
	for evt := range c.send {
		if err := c.ws.WriteJSON(evt); err != nil {
			c.log.Debug("write failed", zap.String("userId", c.userID), zap.Error(err))
		}
	}
}

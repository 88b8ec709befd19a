// Package client 是协作会话的每编辑器实例适配器：打开连接、加入文档、
// 发送本地操作/光标，并向调用方（编辑器 UI）暴露可随时读取的响应式状态。
// 所有发送都是 fire-and-forget：结果只能通过随后的广播事件观察到。
package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabService/backend/internal/collab"
)

const defaultAutoSaveWindow = 2 * time.Second

type Options struct {
	// URL：ws:// 或 wss:// 端点，例如 ws://localhost:8084/collab/ws
	URL string
	// Token：access token，经 ?token= 传递（浏览器 WebSocket 无法自定义 Header）
	Token string
	// User：已鉴权身份（服务端以自身鉴权结果为准，Name 用于展示）
	User collab.User
	// AutoSaveWindow：收到他人 content-changed 后 isAutoSaving 保持的时长
	AutoSaveWindow time.Duration
	// OnEvent：每个服务端事件的回调（读 goroutine 内调用，不可阻塞）
	OnEvent func(collab.Event)
	Logger  *zap.Logger
}

// Adapter 持有一条协作连接与其响应式状态。并发安全：
// 状态由读 goroutine 更新，getter 随时可从任意 goroutine 调用。
type Adapter struct {
	opts Options
	ws   *websocket.Conn
	send chan collab.ClientMessage
	done chan struct{}
	log  *zap.Logger

	mu            sync.RWMutex
	connected     bool
	documentID    string
	collaborators []collab.User
	lockedBy      string
	version       uint64
	content       json.RawMessage
	isAutoSaving  bool

	autosaveTimer *time.Timer
}

// Dial 建立连接并启动读写循环。加入文档需另行调用 JoinDocument。
func Dial(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.AutoSaveWindow <= 0 {
		opts.AutoSaveWindow = defaultAutoSaveWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	endpoint := opts.URL
	if opts.Token != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("token", opts.Token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		opts:      opts,
		ws:        ws,
		send:      make(chan collab.ClientMessage, 32),
		done:      make(chan struct{}),
		log:       opts.Logger,
		connected: true,
	}
	go a.writeLoop()
	go a.readLoop()
	return a, nil
}

// JoinDocument 发出 join-document。服务端会单播 document-state 作为起始真值。
func (a *Adapter) JoinDocument(documentID string) {
	a.mu.Lock()
	a.documentID = documentID
	a.mu.Unlock()
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventJoinDocument,
		DocumentID: documentID,
		UserID:     a.opts.User.ID,
		User:       &a.opts.User,
	})
}

func (a *Adapter) SendContentChange(operation json.RawMessage) {
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventContentChange,
		DocumentID: a.currentDocument(),
		UserID:     a.opts.User.ID,
		Operation:  operation,
	})
}

func (a *Adapter) SendCursorUpdate(cursor json.RawMessage) {
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventCursorMove,
		DocumentID: a.currentDocument(),
		UserID:     a.opts.User.ID,
		Cursor:     cursor,
	})
}

func (a *Adapter) LockDocument() {
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventLockDocument,
		DocumentID: a.currentDocument(),
		UserID:     a.opts.User.ID,
	})
}

func (a *Adapter) UnlockDocument() {
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventUnlockDocument,
		DocumentID: a.currentDocument(),
		UserID:     a.opts.User.ID,
	})
}

// LeaveDocument 是取消原语：立即无条件释放在场状态与可能持有的锁。
func (a *Adapter) LeaveDocument() {
	doc := a.currentDocument()
	a.mu.Lock()
	a.documentID = ""
	a.mu.Unlock()
	a.enqueue(collab.ClientMessage{
		Type:       collab.EventLeaveDocument,
		DocumentID: doc,
		UserID:     a.opts.User.ID,
	})
}

// Close 关闭底层连接。服务端把断连视同 leave，无需先 LeaveDocument。
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return a.ws.Close()
}

// ---- 响应式状态 ----

func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *Adapter) Collaborators() []collab.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]collab.User, len(a.collaborators))
	copy(out, a.collaborators)
	return out
}

func (a *Adapter) IsDocumentLocked() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lockedBy != ""
}

func (a *Adapter) LockedBy() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lockedBy
}

func (a *Adapter) DocumentVersion() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

func (a *Adapter) Content() json.RawMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.content
}

// CanEdit：文档未上锁、或本人即持锁者。
func (a *Adapter) CanEdit() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lockedBy == "" || a.lockedBy == a.opts.User.ID
}

// IsOwner：本人是当前持锁者。
func (a *Adapter) IsOwner() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lockedBy != "" && a.lockedBy == a.opts.User.ID
}

// IsAutoSaving 是纯 UI 启发：他人变更到达后的短暂窗口内为 true，
// 不携带任何持久化保证。
func (a *Adapter) IsAutoSaving() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isAutoSaving
}

// ---- 内部 ----

func (a *Adapter) currentDocument() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.documentID
}

// enqueue 非阻塞入队；连接已关闭或队列满时丢弃（fire-and-forget 契约）。
func (a *Adapter) enqueue(msg collab.ClientMessage) {
	select {
	case a.send <- msg:
	case <-a.done:
	default:
		a.log.Warn("adapter send queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (a *Adapter) writeLoop() {
	for {
		select {
		case <-a.done:
			return
		case msg := <-a.send:
			if err := a.ws.WriteJSON(msg); err != nil {
				a.log.Debug("adapter write failed", zap.Error(err))
				return
			}
		}
	}
}

func (a *Adapter) readLoop() {
	defer func() {
		close(a.done)
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
	}()
	for {
		_, data, err := a.ws.ReadMessage()
		if err != nil {
			a.log.Debug("adapter connection closed", zap.Error(err))
			return
		}
		evt, err := collab.DecodeEvent(data)
		if err != nil {
			a.log.Debug("adapter skipping undecodable event", zap.Error(err))
			continue
		}
		a.apply(evt)
		if a.opts.OnEvent != nil {
			a.opts.OnEvent(evt)
		}
	}
}

func (a *Adapter) apply(evt collab.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e := evt.(type) {
	case collab.DocumentStateEvent:
		a.collaborators = e.Collaborators
		a.version = e.Version
		a.content = e.Content
		a.lockedBy = e.LockedBy
	case collab.UserJoinedEvent:
		a.collaborators = e.Collaborators
	case collab.UserLeftEvent:
		a.collaborators = e.Collaborators
		a.lockedBy = e.LockedBy
	case collab.ContentChangedEvent:
		a.version = e.Version
		a.content = e.Operation
		if e.LastModifiedBy != a.opts.User.ID {
			a.flagAutoSavingLocked()
		}
	case collab.CursorUpdatedEvent:
		for i := range a.collaborators {
			if a.collaborators[i].ID == e.UserID {
				a.collaborators[i].Cursor = e.Cursor
			}
		}
	case collab.DocumentLockedEvent:
		a.lockedBy = e.LockedBy
	case collab.DocumentUnlockedEvent:
		a.lockedBy = ""
	}
}

// flagAutoSavingLocked 置位 isAutoSaving 并在窗口结束后复位；窗口内重复触发只顺延。
func (a *Adapter) flagAutoSavingLocked() {
	a.isAutoSaving = true
	if a.autosaveTimer != nil {
		a.autosaveTimer.Stop()
	}
	a.autosaveTimer = time.AfterFunc(a.opts.AutoSaveWindow, func() {
		a.mu.Lock()
		a.isAutoSaving = false
		a.mu.Unlock()
	})
}

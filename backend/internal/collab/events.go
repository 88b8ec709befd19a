package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

// 双向事件名。客户端与服务端必须使用完全一致的字符串。
const (
	// client -> server
	EventJoinDocument   = "join-document"
	EventLeaveDocument  = "leave-document"
	EventContentChange  = "content-change"
	EventCursorMove     = "cursor-move"
	EventLockDocument   = "lock-document"
	EventUnlockDocument = "unlock-document"

	// server -> client
	EventDocumentState    = "document-state"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventContentChanged   = "content-changed"
	EventCursorUpdated    = "cursor-updated"
	EventDocumentLocked   = "document-locked"
	EventDocumentUnlocked = "document-unlocked"
)

// ClientMessage 是入站消息的统一信封。按 Type 分发，未用到的字段留零值。
type ClientMessage struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId,omitempty"`
	User       *User           `json:"user,omitempty"`
	Operation  json.RawMessage `json:"operation,omitempty"`
	Cursor     json.RawMessage `json:"cursor,omitempty"`
}

// Event 是所有出站（server -> client）事件的公共接口。
type Event interface {
	EventType() string
}

// DocumentStateEvent 在 join 后单播给新加入者，作为该文档的当前真值。
type DocumentStateEvent struct {
	Type          string          `json:"type"`
	DocumentID    string          `json:"documentId"`
	Content       json.RawMessage `json:"content"`
	Version       uint64          `json:"version"`
	Collaborators []User          `json:"collaborators"`
	LockedBy      string          `json:"lockedBy,omitempty"`
}

type UserJoinedEvent struct {
	Type          string `json:"type"`
	DocumentID    string `json:"documentId"`
	User          User   `json:"user"`
	Collaborators []User `json:"collaborators"`
}

type UserLeftEvent struct {
	Type          string `json:"type"`
	DocumentID    string `json:"documentId"`
	UserID        string `json:"userId"`
	Collaborators []User `json:"collaborators"`
	LockedBy      string `json:"lockedBy,omitempty"`
}

type ContentChangedEvent struct {
	Type           string          `json:"type"`
	DocumentID     string          `json:"documentId"`
	Operation      json.RawMessage `json:"operation"`
	Version        uint64          `json:"version"`
	LastModified   time.Time       `json:"lastModified"`
	LastModifiedBy string          `json:"lastModifiedBy"`
}

type CursorUpdatedEvent struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Cursor     json.RawMessage `json:"cursor,omitempty"`
}

type DocumentLockedEvent struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	LockedBy   string `json:"lockedBy"`
	Message    string `json:"message,omitempty"`
}

type DocumentUnlockedEvent struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	UnlockedBy string `json:"unlockedBy"`
	Message    string `json:"message,omitempty"`
}

func (e DocumentStateEvent) EventType() string    { return e.Type }
func (e UserJoinedEvent) EventType() string       { return e.Type }
func (e UserLeftEvent) EventType() string         { return e.Type }
func (e ContentChangedEvent) EventType() string   { return e.Type }
func (e CursorUpdatedEvent) EventType() string    { return e.Type }
func (e DocumentLockedEvent) EventType() string   { return e.Type }
func (e DocumentUnlockedEvent) EventType() string { return e.Type }

// DecodeEvent 将出站事件的 JSON 还原为具体类型（客户端侧使用）。
func DecodeEvent(data []byte) (Event, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case EventDocumentState:
		var e DocumentStateEvent
		return e, json.Unmarshal(data, &e)
	case EventUserJoined:
		var e UserJoinedEvent
		return e, json.Unmarshal(data, &e)
	case EventUserLeft:
		var e UserLeftEvent
		return e, json.Unmarshal(data, &e)
	case EventContentChanged:
		var e ContentChangedEvent
		return e, json.Unmarshal(data, &e)
	case EventCursorUpdated:
		var e CursorUpdatedEvent
		return e, json.Unmarshal(data, &e)
	case EventDocumentLocked:
		var e DocumentLockedEvent
		return e, json.Unmarshal(data, &e)
	case EventDocumentUnlocked:
		var e DocumentUnlockedEvent
		return e, json.Unmarshal(data, &e)
	default:
		return nil, fmt.Errorf("unknown event type %q", probe.Type)
	}
}

// Broadcaster 负责把事件推给某文档房间内的连接。ws.Hub 是其实现。
// 协调器在持有会话锁期间调用它，以保证单文档广播与状态变更同序。
type Broadcaster interface {
	// Broadcast 推给房间内除 exceptUserID 外的所有参与者；exceptUserID 为空则推给全部。
	Broadcast(documentID, exceptUserID string, evt Event)
	// Unicast 只推给房间内指定用户的连接。
	Unicast(documentID, userID string, evt Event)
}

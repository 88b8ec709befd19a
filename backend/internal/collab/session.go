package collab

import (
	"encoding/json"
	"sync"
	"time"
)

// Session 是单个文档的权威内存态：最近内容、版本号、持锁者、协作者集合。
// 所有字段只允许在 mu 内读写；协调器是唯一的修改入口。
type Session struct {
	mu sync.Mutex

	documentID    string
	content       json.RawMessage
	version       uint64
	collaborators roster
	lockedBy      string

	lastModified   time.Time
	lastModifiedBy string

	// dirty：自上次落盘后内容是否有变更（auto-save 读取后清零）
	dirty bool
	// emptySince：协作者清零的时刻；零值表示房间非空。janitor 据此衰减会话。
	emptySince time.Time
}

func newSession(documentID string, content json.RawMessage, version uint64) *Session {
	return &Session{
		documentID:    documentID,
		content:       content,
		version:       version,
		collaborators: make(roster),
		emptySince:    time.Now(),
	}
}

// Snapshot 是会话状态的不可变拷贝，用于 document-state 下发与 auto-save 落盘。
type Snapshot struct {
	DocumentID     string          `json:"documentId"`
	Content        json.RawMessage `json:"content"`
	Version        uint64          `json:"version"`
	Collaborators  []User          `json:"collaborators"`
	LockedBy       string          `json:"lockedBy,omitempty"`
	LastModified   time.Time       `json:"lastModified"`
	LastModifiedBy string          `json:"lastModifiedBy,omitempty"`
}

// snapshotLocked 要求调用方已持有 s.mu。
func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		DocumentID:     s.documentID,
		Content:        s.content,
		Version:        s.version,
		Collaborators:  s.collaborators.list(),
		LockedBy:       s.lockedBy,
		LastModified:   s.lastModified,
		LastModifiedBy: s.lastModifiedBy,
	}
}

// canEditLocked：未上锁、或调用方即持锁者时可编辑。
func (s *Session) canEditLocked(userID string) bool {
	return s.lockedBy == "" || s.lockedBy == userID
}

// applyChangeLocked 校验锁并推进版本。被拒绝时状态零变更。
func (s *Session) applyChangeLocked(userID string, operation json.RawMessage, now time.Time) (ContentChangedEvent, error) {
	if !s.canEditLocked(userID) {
		return ContentChangedEvent{}, ErrDocumentLocked
	}
	s.version++
	s.content = operation
	s.lastModified = now
	s.lastModifiedBy = userID
	s.dirty = true
	return ContentChangedEvent{
		Type:           EventContentChanged,
		DocumentID:     s.documentID,
		Operation:      operation,
		Version:        s.version,
		LastModified:   now,
		LastModifiedBy: userID,
	}, nil
}

// lockLocked：已有其他持锁者时失败，请求方不排队。重复 lock 自己持有的锁为幂等成功。
func (s *Session) lockLocked(userID string) error {
	if s.lockedBy != "" && s.lockedBy != userID {
		return ErrLockHeld
	}
	s.lockedBy = userID
	return nil
}

func (s *Session) unlockLocked(userID string) error {
	if s.lockedBy != userID {
		return ErrNotLockHolder
	}
	s.lockedBy = ""
	return nil
}

// leaveLocked 移除成员；若其持有锁则隐式释放（不变量：lockedBy ∈ collaborators）。
// 返回锁是否被本次 leave 释放。
func (s *Session) leaveLocked(userID string, now time.Time) bool {
	s.collaborators.leave(userID)
	released := false
	if s.lockedBy == userID {
		s.lockedBy = ""
		released = true
	}
	if len(s.collaborators) == 0 {
		s.emptySince = now
	}
	return released
}

func (s *Session) joinLocked(u User, now time.Time) {
	s.collaborators.join(u, now)
	s.emptySince = time.Time{}
}

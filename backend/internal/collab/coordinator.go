package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContentLoader 从外部持久层读取文档的最近快照，用于会话的惰性创建。
type ContentLoader interface {
	LoadDocument(ctx context.Context, documentID string) (content []byte, version uint64, err error)
}

// Saver 是外部持久化回调：auto-save 周期性把会话快照写入存储。
type Saver interface {
	SaveSnapshot(ctx context.Context, documentID string, version uint64, content []byte) error
}

// Publisher 把已接受的 content-change 投递到事件总线（Kafka），尽力而为。
type Publisher interface {
	Enqueue(ctx context.Context, evt DocEvent) error
}

// PresenceMirror 把房间成员/光标镜像到共享缓存（Redis），供其他服务读取。
// 镜像是旁路：失败只记日志，不影响内存态与广播。
type PresenceMirror interface {
	AddMember(ctx context.Context, documentID, userID, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, documentID, userID string) error
	SetCursor(ctx context.Context, documentID, userID string, cursor []byte, ttl time.Duration) error
}

type CoordinatorOptions struct {
	Loader    ContentLoader
	Mirror    PresenceMirror
	Publisher Publisher
	Logger    *zap.Logger

	// SessionTTL：最后一个参与者离开后，会话保留多久以便快速重进
	SessionTTL time.Duration
	// JanitorInterval：空会话清扫周期
	JanitorInterval time.Duration
	// PresenceTTL：Redis 镜像里成员/光标的逻辑过期时长
	PresenceTTL time.Duration
}

// Coordinator 是唯一的事件入口：把入站客户端事件路由到会话状态并扇出广播。
// 单文档的事件在该会话的互斥锁内完整处理（状态变更 + 广播入队），
// 因而单文档广播严格 FIFO；不同文档互不串序，可并发处理。
type Coordinator struct {
	sessions syncSessions

	bc        Broadcaster
	loader    ContentLoader
	mirror    PresenceMirror
	publisher Publisher
	log       *zap.Logger

	sessionTTL      time.Duration
	janitorInterval time.Duration
	presenceTTL     time.Duration
}

func NewCoordinator(bc Broadcaster, opts CoordinatorOptions) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 5 * time.Minute
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = time.Minute
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = 600 * time.Second
	}
	return &Coordinator{
		sessions:        newSyncSessions(),
		bc:              bc,
		loader:          opts.Loader,
		mirror:          opts.Mirror,
		publisher:       opts.Publisher,
		log:             opts.Logger,
		sessionTTL:      opts.SessionTTL,
		janitorInterval: opts.JanitorInterval,
		presenceTTL:     opts.PresenceTTL,
	}
}

// getOrCreate 返回已有会话，或从外部真值源加载快照后新建。
// 加载失败按“空文档”降级，可用性优先于严格一致。
func (co *Coordinator) getOrCreate(ctx context.Context, documentID string) *Session {
	if s := co.sessions.get(documentID); s != nil {
		return s
	}
	var content json.RawMessage
	var version uint64
	if co.loader != nil {
		c, v, err := co.loader.LoadDocument(ctx, documentID)
		if err != nil {
			co.log.Warn("load document failed, seeding empty session",
				zap.String("documentId", documentID), zap.Error(err))
		} else {
			content, version = c, v
		}
	}
	return co.sessions.getOrInsert(documentID, func() *Session {
		return newSession(documentID, content, version)
	})
}

// Join 注册在场状态，单播 document-state 给新加入者，并向其余参与者广播 user-joined。
// 调用前连接必须已挂入对应房间，否则单播会丢失。
func (co *Coordinator) Join(ctx context.Context, documentID string, user User) Snapshot {
	s := co.getOrCreate(ctx, documentID)
	now := time.Now()

	s.mu.Lock()
	s.joinLocked(user, now)
	snap := s.snapshotLocked()
	co.bc.Unicast(documentID, user.ID, DocumentStateEvent{
		Type:          EventDocumentState,
		DocumentID:    documentID,
		Content:       snap.Content,
		Version:       snap.Version,
		Collaborators: snap.Collaborators,
		LockedBy:      snap.LockedBy,
	})
	co.bc.Broadcast(documentID, user.ID, UserJoinedEvent{
		Type:          EventUserJoined,
		DocumentID:    documentID,
		User:          user,
		Collaborators: snap.Collaborators,
	})
	s.mu.Unlock()

	if co.mirror != nil {
		if err := co.mirror.AddMember(ctx, documentID, user.ID, user.Name, co.presenceTTL); err != nil {
			co.log.Warn("presence mirror add failed", zap.String("documentId", documentID), zap.Error(err))
		}
	}
	co.log.Info("user joined document",
		zap.String("documentId", documentID), zap.String("userId", user.ID))
	return snap
}

// Leave 移除在场状态；若离开者持有锁则隐式释放。断连与显式 leave 走同一条路径。
func (co *Coordinator) Leave(ctx context.Context, documentID, userID string) {
	s := co.sessions.get(documentID)
	if s == nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	if !s.collaborators.contains(userID) {
		s.mu.Unlock()
		return
	}
	released := s.leaveLocked(userID, now)
	co.bc.Broadcast(documentID, userID, UserLeftEvent{
		Type:          EventUserLeft,
		DocumentID:    documentID,
		UserID:        userID,
		Collaborators: s.collaborators.list(),
		LockedBy:      s.lockedBy,
	})
	s.mu.Unlock()

	if co.mirror != nil {
		if err := co.mirror.RemoveMember(ctx, documentID, userID); err != nil {
			co.log.Warn("presence mirror remove failed", zap.String("documentId", documentID), zap.Error(err))
		}
	}
	co.log.Info("user left document",
		zap.String("documentId", documentID), zap.String("userId", userID),
		zap.Bool("lockReleased", released))
}

// ContentChange 应用一次内容变更并向其余参与者广播 content-changed。
// 被其他用户锁定时拒绝：状态零变更、不广播，错误只返回给调用侧记录（对端静默）。
func (co *Coordinator) ContentChange(ctx context.Context, documentID, userID string, operation json.RawMessage) error {
	s := co.getOrCreate(ctx, documentID)
	now := time.Now()

	s.mu.Lock()
	s.collaborators.touch(userID, now)
	evt, err := s.applyChangeLocked(userID, operation, now)
	if err != nil {
		s.mu.Unlock()
		co.log.Debug("content change rejected",
			zap.String("documentId", documentID), zap.String("userId", userID), zap.Error(err))
		return err
	}
	co.bc.Broadcast(documentID, userID, evt)
	s.mu.Unlock()

	if co.publisher != nil {
		docEvt := DocEvent{
			EventType:   DocEventContentChanged,
			DocumentID:  documentID,
			OperationID: uuid.NewString(),
			Version:     evt.Version,
			AuthorID:    userID,
			Operation:   operation,
			AppliedAt:   now,
		}
		if err := co.publisher.Enqueue(ctx, docEvt); err != nil {
			co.log.Warn("publish content change failed", zap.String("documentId", documentID), zap.Error(err))
		}
	}
	return nil
}

// CursorMove 更新成员光标并广播 cursor-updated。非成员时静默忽略。
func (co *Coordinator) CursorMove(ctx context.Context, documentID, userID string, cursor json.RawMessage) {
	s := co.sessions.get(documentID)
	if s == nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	if !s.collaborators.setCursor(userID, cursor, now) {
		s.mu.Unlock()
		return
	}
	co.bc.Broadcast(documentID, userID, CursorUpdatedEvent{
		Type:       EventCursorUpdated,
		DocumentID: documentID,
		UserID:     userID,
		Cursor:     cursor,
	})
	s.mu.Unlock()

	if co.mirror != nil {
		if err := co.mirror.SetCursor(ctx, documentID, userID, cursor, co.presenceTTL); err != nil {
			co.log.Warn("presence mirror cursor failed", zap.String("documentId", documentID), zap.Error(err))
		}
	}
}

// Lock 授予排他编辑锁。成功时向包括请求方在内的全部参与者广播 document-locked。
func (co *Coordinator) Lock(ctx context.Context, documentID, userID string) error {
	s := co.getOrCreate(ctx, documentID)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collaborators.touch(userID, now)
	if !s.collaborators.contains(userID) {
		return ErrNotParticipant
	}
	if err := s.lockLocked(userID); err != nil {
		co.log.Debug("lock rejected",
			zap.String("documentId", documentID), zap.String("userId", userID),
			zap.String("lockedBy", s.lockedBy))
		return err
	}
	co.bc.Broadcast(documentID, "", DocumentLockedEvent{
		Type:       EventDocumentLocked,
		DocumentID: documentID,
		LockedBy:   userID,
		Message:    fmt.Sprintf("document locked by %s", displayName(s, userID)),
	})
	return nil
}

// Unlock 释放锁，仅持锁者可调用。成功时向全部参与者广播 document-unlocked。
func (co *Coordinator) Unlock(ctx context.Context, documentID, userID string) error {
	s := co.sessions.get(documentID)
	if s == nil {
		return ErrNotLockHolder
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collaborators.touch(userID, now)
	if err := s.unlockLocked(userID); err != nil {
		co.log.Debug("unlock rejected",
			zap.String("documentId", documentID), zap.String("userId", userID))
		return err
	}
	co.bc.Broadcast(documentID, "", DocumentUnlockedEvent{
		Type:       EventDocumentUnlocked,
		DocumentID: documentID,
		UnlockedBy: userID,
		Message:    fmt.Sprintf("document unlocked by %s", displayName(s, userID)),
	})
	return nil
}

// CanEdit：文档未上锁、或调用方即持锁者。
func (co *Coordinator) CanEdit(documentID, userID string) bool {
	s := co.sessions.get(documentID)
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canEditLocked(userID)
}

// Snapshot 返回存活会话的当前状态；无会话时返回 ErrSessionNotFound（只读接口不新建）。
func (co *Coordinator) Snapshot(documentID string) (Snapshot, error) {
	s := co.sessions.get(documentID)
	if s == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// ActiveSessions 返回所有存活会话的快照（运维/调试接口）。
func (co *Coordinator) ActiveSessions() []Snapshot {
	var out []Snapshot
	for _, s := range co.sessions.all() {
		s.mu.Lock()
		out = append(out, s.snapshotLocked())
		s.mu.Unlock()
	}
	return out
}

// dirtySnapshots 供 auto-save 使用：返回有未落盘变更的会话快照。
func (co *Coordinator) dirtySnapshots() []Snapshot {
	var out []Snapshot
	for _, s := range co.sessions.all() {
		s.mu.Lock()
		if s.dirty {
			out = append(out, s.snapshotLocked())
		}
		s.mu.Unlock()
	}
	return out
}

// markSaved 在落盘成功后清除 dirty；若期间版本又前进则保持 dirty。
func (co *Coordinator) markSaved(documentID string, version uint64) {
	s := co.sessions.get(documentID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.version == version {
		s.dirty = false
	}
	s.mu.Unlock()
}

// RunJanitor 周期清扫衰减的空会话，直到 ctx 结束。
// 只回收「空置超过 SessionTTL 且无未落盘变更」的会话；dirty 会话留给
// auto-save 先落盘，下一轮再回收。被回收的文档再次 join 时会经
// ContentLoader 从外部真值源重建。
func (co *Coordinator) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(co.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.sweep(time.Now())
		}
	}
}

func (co *Coordinator) sweep(now time.Time) {
	for id, s := range co.sessions.all() {
		s.mu.Lock()
		expired := len(s.collaborators) == 0 && !s.dirty &&
			!s.emptySince.IsZero() && now.Sub(s.emptySince) > co.sessionTTL
		s.mu.Unlock()
		if expired {
			co.sessions.remove(id)
			co.log.Info("session evicted", zap.String("documentId", id))
		}
	}
}

func displayName(s *Session, userID string) string {
	if u, ok := s.collaborators[userID]; ok && u.Name != "" {
		return u.Name
	}
	return userID
}

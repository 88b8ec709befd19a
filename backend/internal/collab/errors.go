package collab

import "errors"

var (
	// 文档被其他用户锁定时提交 content-change
	ErrDocumentLocked = errors.New("DOCUMENT_LOCKED")
	// 非持锁者尝试 unlock
	ErrNotLockHolder = errors.New("NOT_LOCK_HOLDER")
	// lock 请求时已有其他持锁者（不排队，客户端自行重试）
	ErrLockHeld = errors.New("LOCK_HELD")
	// 非房间成员发起 lock（违反 lockedBy ∈ collaborators 不变量）
	ErrNotParticipant = errors.New("NOT_PARTICIPANT")
	// 操作引用的文档没有存活会话（仅只读接口返回；写路径按“新建会话”处理）
	ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")
)

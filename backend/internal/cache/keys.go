package cache

import "fmt"

// 键语义：
// - roomKey(documentID):   房间在线成员（ZSet<userId>，score=expireAtUnix 表达逻辑 TTL）
// - namesKey(documentID):  房间内 userId -> 显示名 映射（Hash）
// - cursorKey(...):        成员光标 JSON（String，带物理 TTL）

const (
	keyRoomFmt   = "presence:room:{docID:%s}"
	keyNamesFmt  = "presence:room:names:{docID:%s}"
	keyCursorFmt = "presence:cursor:%s:%s"
)

func roomKey(documentID string) string  { return fmt.Sprintf(keyRoomFmt, documentID) }
func namesKey(documentID string) string { return fmt.Sprintf(keyNamesFmt, documentID) }
func cursorKey(documentID, userID string) string {
	return fmt.Sprintf(keyCursorFmt, documentID, userID)
}

package collab

import (
	"encoding/json"
	"time"
)

const DocEventContentChanged = "CONTENT_CHANGED"

// DocEvent 是投递到 Kafka 的文档变更事件，供审计/下游服务消费。
// 以 documentId 作为分区 key，保证同文档事件落在同一分区。
type DocEvent struct {
	EventType   string          `json:"eventType"`
	DocumentID  string          `json:"documentId"`
	OperationID string          `json:"operationId"`
	Version     uint64          `json:"version"`
	AuthorID    string          `json:"authorId"`
	Operation   json.RawMessage `json:"operation"`
	AppliedAt   time.Time       `json:"appliedAt"`
}

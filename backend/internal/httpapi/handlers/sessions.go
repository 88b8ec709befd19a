package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabService/backend/internal/collab"
)

// SessionHandlers 暴露协作会话的只读运维接口。
type SessionHandlers struct {
	co *collab.Coordinator
}

func NewSessionHandlers(co *collab.Coordinator) *SessionHandlers {
	return &SessionHandlers{co: co}
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ListSessions 返回所有存活会话的快照。
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.co.ActiveSessions()})
}

// GetSession 返回单个文档的会话快照；无存活会话时 404（只读接口不新建会话）。
func (h *SessionHandlers) GetSession(c *gin.Context) {
	documentID := c.Param("documentID")
	snap, err := h.co.Snapshot(documentID)
	if err != nil {
		if errors.Is(err, collab.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "SESSION_NOT_FOUND", "documentId": documentID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

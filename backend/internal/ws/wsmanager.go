package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabService/backend/internal/collab"
)

// 允许本地开发环境的来源；部分环境不发送 Origin 或为 "null"
var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

// Manager 负责把已鉴权的 HTTP 请求升级为协作连接。
type Manager struct {
	hub *Hub
	co  *collab.Coordinator
	log *zap.Logger
}

func NewManager(hub *Hub, co *collab.Coordinator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{hub: hub, co: co, log: log}
}

// WebSocketConnect 升级连接并跑读写循环，阻塞到连接关闭。
// 身份从 gin 上下文取（鉴权中间件写入），本层不再校验。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	username := c.GetString("username")
	if userID == "" {
		c.String(http.StatusUnauthorized, "missing identity")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed",
			zap.Error(err), zap.String("origin", c.Request.Header.Get("Origin")))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.co, userID, username, m.log)

	// 先启动写循环，保证读循环产生的出站消息能被及时发送
	go wsConn.writeLoop()
	wsConn.readLoop(c.Request.Context())
}

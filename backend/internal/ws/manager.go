package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relay-service/backend/internal/relay"
)

// 全局的WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
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
}}

type Manager struct {
	h   *Hub
	rly *relay.Relay
}

func NewManager(h *Hub, rly *relay.Relay) *Manager {
	return &Manager{h: h, rly: rly}
}

// WebSocketConnect 把一次 HTTP 请求升级成协作会话。
// userId/username 由鉴权中间件写入 gin.Context。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	// 每次会话一个不透明连接标识
	wsConn := NewConn(conn, m.h, m.rly, uuid.NewString(), userID, username)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.SendMessageEnqueue(ServerMessage{Type: "welcome", ConnectionID: wsConn.connID})

	// 最后进入读循环（阻塞至连接关闭；deferred Leave 负责清理）
	wsConn.readLoop(c.Request.Context())
}

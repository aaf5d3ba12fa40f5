package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 起一个真实的 HTTP 服务做升级握手；测试里不走鉴权中间件，直接注入身份
func newWSTestServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "u-test")
		c.Set("username", "tester")
	})
	m := NewManager(h, nil)
	r.GET("/collab/ws", m.WebSocketConnect)
	srv := httptest.NewServer(r)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/collab/ws"
}

func TestWebSocketConnect_MalformedPageIDRejectedBeforeJoin(t *testing.T) {
	h := NewHub()
	srv, url := newWSTestServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// 握手后先收 welcome，里面带本连接的 connectionId
	var welcome map[string]any
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome error = %v", err)
	}
	if welcome["type"] != "welcome" {
		t.Fatalf("first message type = %v, want welcome", welcome["type"])
	}
	if id, _ := welcome["connectionId"].(string); id == "" {
		t.Fatalf("welcome = %v, want non-empty connectionId", welcome)
	}

	if err := conn.WriteJSON(map[string]any{"type": "join", "pageId": "not-a-uuid"}); err != nil {
		t.Fatalf("write join error = %v", err)
	}

	var resp map[string]any
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read response error = %v", err)
	}
	if resp["type"] != "error" || resp["content"] != "INVALID_PAGE_ID" {
		t.Fatalf("response = %v, want error INVALID_PAGE_ID", resp)
	}

	// 非法 pageId 必须在任何状态变更之前被拒掉：不允许留下半个房间
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("RoomCount() = %d, want 0", got)
	}
}

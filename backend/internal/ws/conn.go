package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relay-service/backend/internal/relay"
)

type Conn struct {
	ws  *websocket.Conn
	hub *Hub
	rly *relay.Relay

	connID   string
	userID   string
	username string
	joinedAt time.Time

	// 当前所在页面 / 光标呈现数据；都由 hub.mu 保护
	pageID   string
	presence json.RawMessage

	// goroutine 之间的出站队列；writeLoop 消费
	send chan OutboundMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, rly *relay.Relay, connID, userID, username string) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		rly:      rly,
		connID:   connID,
		userID:   userID,
		username: username,
		joinedAt: time.Now(),
		send:     make(chan OutboundMessage, 32),
	}
}

// presenceEntryLocked 调用方必须持有 hub.mu
func (c *Conn) presenceEntryLocked() PresenceEntry {
	return PresenceEntry{
		ConnectionID: c.connID,
		UserID:       c.userID,
		UserName:     c.username,
		Presence:     c.presence,
		JoinedAt:     c.joinedAt,
	}
}

func (c *Conn) SendMessageEnqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		// 如果队列满了，则丢弃消息
	}
}

// readLoop 阻塞至连接关闭。
// 连接无论怎么断（显式 leave、读错误、传输层断开），deferred Leave 都会执行：
// 这是保证性的清理路径，不是尽力而为。
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.send)
	defer c.hub.Leave(c)

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%s, conn=%s): %v", c.userID, c.connID, err)
			return
		}

		// 所有带 pageId 的操作都先做格式校验，再碰任何状态
		if msg.Type != "" && msg.PageID != "" {
			if _, err := uuid.Parse(msg.PageID); err != nil {
				c.SendMessageEnqueue(ServerMessage{Type: "error", PageID: msg.PageID, Content: "INVALID_PAGE_ID"})
				continue
			}
		}

		switch msg.Type {
		case "join":
			if msg.PageID == "" {
				c.SendMessageEnqueue(ServerMessage{Type: "error", Content: "INVALID_PAGE_ID"})
				continue
			}
			others := c.hub.Join(msg.PageID, c)

			// 先发快照再发在场名单；没有快照时 Payload 为空，
			// 冷启动兜底（从关系库重建）由客户端在确认本地 CRDT 也为空后才做
			state := c.rly.LoadInitialState(ctx, msg.PageID)
			c.SendMessageEnqueue(InitialStateMessage{Type: "initialState", PageID: msg.PageID, Payload: state})
			c.SendMessageEnqueue(CurrentUsersMessage{Type: "currentUsers", PageID: msg.PageID, Members: others})

		case "leave":
			c.hub.Leave(c)

		case "update":
			if msg.PageID == "" {
				c.SendMessageEnqueue(ServerMessage{Type: "error", Content: "INVALID_PAGE_ID"})
				continue
			}
			c.rly.RelayUpdate(msg.PageID, msg.Payload, c.connID)

		case "awareness":
			if msg.PageID == "" {
				c.SendMessageEnqueue(ServerMessage{Type: "error", Content: "INVALID_PAGE_ID"})
				continue
			}
			c.rly.RelayAwareness(msg.PageID, msg.Payload, c.connID)

		case "presence":
			c.hub.UpdatePresence(c, msg.Presence)

		case "saveSnapshot":
			if msg.PageID == "" {
				c.SendMessageEnqueue(ServerMessage{Type: "error", Content: "INVALID_PAGE_ID"})
				continue
			}
			saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.rly.SaveSnapshot(saveCtx, msg.PageID, msg.Payload)
			cancel()
			if err != nil {
				log.Printf("save snapshot error (page=%s, conn=%s): %v", msg.PageID, c.connID, err)
				// 失败回给客户端，由客户端决定下个定时周期要不要重试
				c.SendMessageEnqueue(ServerMessage{Type: "error", PageID: msg.PageID, Content: "SAVE_SNAPSHOT_FAILED"})
				continue
			}
			c.SendMessageEnqueue(ServerMessage{Type: "saveSnapshot", PageID: msg.PageID, Content: "saved"})

		default:
			// 忽略未知类型，回一条提示
			c.SendMessageEnqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

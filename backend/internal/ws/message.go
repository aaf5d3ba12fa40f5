package ws

import (
	"encoding/json"
	"time"
)

// ClientMessage 客户端到服务端的统一信封，按 type 分发。
// Payload 是 CRDT/awareness 的原始字节（JSON 里是 base64），服务端不解析。
type ClientMessage struct {
	Type     string          `json:"type"`
	PageID   string          `json:"pageId,omitempty"`
	Payload  []byte          `json:"payload,omitempty"`
	Presence json.RawMessage `json:"presence,omitempty"`
}

// PresenceEntry 一个在线协作者的呈现信息
type PresenceEntry struct {
	ConnectionID string          `json:"connectionId"`
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	Presence     json.RawMessage `json:"presence,omitempty"`
	JoinedAt     time.Time       `json:"joinedAt"`
}

type ServerMessage struct {
	Type   string `json:"type"`
	PageID string `json:"pageId,omitempty"`
	// welcome 消息里带上连接自己的 connectionId（后续 userJoined/userLeft 用它对账）
	ConnectionID string `json:"connectionId,omitempty"`
	Content      string `json:"content,omitempty"`
}

// InitialStateMessage 加入页面后下发的快照字节。
// Payload 为空表示还没有快照：客户端只有在自身 CRDT 状态也为空时
// 才允许从关系库冷启动，避免覆盖其他在线客户端已合并的编辑。
type InitialStateMessage struct {
	Type    string `json:"type"` // 固定 "initialState"
	PageID  string `json:"pageId"`
	Payload []byte `json:"payload"`
}

// CurrentUsersMessage 加入时下发的"已经在场的人"列表（不含加入者自己）
type CurrentUsersMessage struct {
	Type    string          `json:"type"` // 固定 "currentUsers"
	PageID  string          `json:"pageId"`
	Members []PresenceEntry `json:"members"`
}

type UserJoinedMessage struct {
	Type   string        `json:"type"` // 固定 "userJoined"
	PageID string        `json:"pageId"`
	Member PresenceEntry `json:"member"`
}

type UserLeftMessage struct {
	Type         string `json:"type"` // 固定 "userLeft"
	PageID       string `json:"pageId"`
	ConnectionID string `json:"connectionId"`
}

type PresenceUpdateMessage struct {
	Type         string          `json:"type"` // 固定 "presenceUpdate"
	PageID       string          `json:"pageId"`
	ConnectionID string          `json:"connectionId"`
	Presence     json.RawMessage `json:"presence"`
	Timestamp    time.Time       `json:"timestamp"`
}

// RelayMessage 转发给同页面其他连接的不透明负载
// Type = "update"（文档内容，持久语义） / "awareness"（光标等瞬态信息）
type RelayMessage struct {
	Type    string `json:"type"`
	PageID  string `json:"pageId"`
	From    string `json:"from"` // 发送方 connectionId
	Payload []byte `json:"payload"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// 隐式实现 OutboundMessage 接口
func (m ServerMessage) MessageType() string         { return m.Type }
func (m InitialStateMessage) MessageType() string   { return m.Type }
func (m CurrentUsersMessage) MessageType() string   { return m.Type }
func (m UserJoinedMessage) MessageType() string     { return m.Type }
func (m UserLeftMessage) MessageType() string       { return m.Type }
func (m PresenceUpdateMessage) MessageType() string { return m.Type }
func (m RelayMessage) MessageType() string          { return m.Type }

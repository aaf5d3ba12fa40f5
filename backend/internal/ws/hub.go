package ws

import (
	"encoding/json"
	"sync"
	"time"
)

// Hub 进程内"谁在看哪个页面"的唯一权威记录。
// 单进程实现：多实例部署时各实例只看得到自己的连接（见 DESIGN.md 的未决问题）。
type Hub struct {
	// 读写锁，保护 rooms / byConn 以及各连接的 presence 字段。
	// 加入/离开房间、广播、改光标都要先拿锁。
	mu sync.RWMutex
	// pageID -> set of connections
	// 房间里存的是连接而不是 userID：一个用户可开多个标签页（多连接），
	// 广播要逐连接发。
	rooms map[string]map[*Conn]struct{}
	// 反向索引：连接 -> 它当前所在的页面（一个连接同一时刻至多在一个房间）
	byConn map[*Conn]string
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Conn]struct{}),
		byConn: make(map[*Conn]string),
	}
}

// Join 把连接加入页面房间，返回已经在场的其他成员（不含加入者）。
// 房间不存在则创建；连接已在别的房间则先离开旧房间。
// 副作用：向房间里其他成员广播 userJoined。
func (h *Hub) Join(pageID string, c *Conn) []PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.byConn[c]; ok && prev != pageID {
		h.leaveLocked(c, prev)
	}

	if h.rooms[pageID] == nil {
		h.rooms[pageID] = make(map[*Conn]struct{})
	}

	// 重复 join 同一页面是幂等的：自己不会出现在"已在场"名单里
	_, already := h.rooms[pageID][c]
	others := make([]PresenceEntry, 0, len(h.rooms[pageID]))
	for other := range h.rooms[pageID] {
		if other == c {
			continue
		}
		others = append(others, other.presenceEntryLocked())
	}

	h.rooms[pageID][c] = struct{}{}
	h.byConn[c] = pageID
	c.pageID = pageID

	// 已在房间里的连接重复 join 不再广播，其他成员早就收到过 userJoined
	if !already {
		joined := UserJoinedMessage{Type: "userJoined", PageID: pageID, Member: c.presenceEntryLocked()}
		for other := range h.rooms[pageID] {
			if other == c {
				continue
			}
			other.SendMessageEnqueue(joined)
		}
	}
	return others
}

// Leave 把连接从它所在的房间移除；房间空了就删掉房间。
// 幂等：重复调用或对从未加入的连接调用都是 no-op。
// 副作用：向仍留在房间里的成员广播 userLeft。
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pageID, ok := h.byConn[c]
	if !ok {
		return
	}
	h.leaveLocked(c, pageID)
}

func (h *Hub) leaveLocked(c *Conn, pageID string) {
	if conns, ok := h.rooms[pageID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, pageID)
		}
	}
	delete(h.byConn, c)
	c.pageID = ""

	left := UserLeftMessage{Type: "userLeft", PageID: pageID, ConnectionID: c.connID}
	for other := range h.rooms[pageID] {
		other.SendMessageEnqueue(left)
	}
}

// UpdatePresence 把光标/选区增量合并到连接的呈现记录，并广播给同房间其他成员。
// 不改变房间成员关系。
func (h *Hub) UpdatePresence(c *Conn, delta json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pageID, ok := h.byConn[c]
	if !ok {
		return
	}
	c.presence = mergePresence(c.presence, delta)

	msg := PresenceUpdateMessage{
		Type:         "presenceUpdate",
		PageID:       pageID,
		ConnectionID: c.connID,
		Presence:     c.presence,
		Timestamp:    time.Now(),
	}
	for other := range h.rooms[pageID] {
		if other == c {
			continue
		}
		other.SendMessageEnqueue(msg)
	}
}

// Presence 只读查询：页面当前所有成员
func (h *Hub) Presence(pageID string) []PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presenceLocked(pageID)
}

func (h *Hub) presenceLocked(pageID string) []PresenceEntry {
	conns := h.rooms[pageID]
	entries := make([]PresenceEntry, 0, len(conns))
	for c := range conns {
		entries = append(entries, c.presenceEntryLocked())
	}
	return entries
}

// RoomCount 当前存在的房间数（测试用：验证空房间被删除）
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// BroadcastUpdate 把 CRDT 更新字节原样转发给页面里除发送方以外的所有连接。
// 服务端不解析、不合并、不校验负载：合并语义属于客户端的 CRDT 算法。
func (h *Hub) BroadcastUpdate(pageID string, payload []byte, exceptConnID string) {
	h.relay("update", pageID, payload, exceptConnID)
}

// BroadcastAwareness 同样的转发契约，单独的消息类型：
// awareness 是瞬态信息（光标闪烁），不和文档内容（持久）混在一起。
func (h *Hub) BroadcastAwareness(pageID string, payload []byte, exceptConnID string) {
	h.relay("awareness", pageID, payload, exceptConnID)
}

func (h *Hub) relay(kind, pageID string, payload []byte, exceptConnID string) {
	// 入队是非阻塞的，所以直接在读锁内完成：
	// 锁保证不会发到一条已经 Leave 并关闭了 send 通道的连接上。
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := RelayMessage{Type: kind, PageID: pageID, From: exceptConnID, Payload: payload}
	for c := range h.rooms[pageID] {
		if c.connID == exceptConnID {
			continue
		}
		c.SendMessageEnqueue(msg)
	}
}

// mergePresence 浅合并两个 JSON 对象；delta 里的字段覆盖旧值。
// 解析失败时保留旧值（呈现数据是尽力而为的瞬态信息）。
func mergePresence(current, delta json.RawMessage) json.RawMessage {
	if len(current) == 0 {
		return delta
	}
	if len(delta) == 0 {
		return current
	}
	var base, patch map[string]json.RawMessage
	if err := json.Unmarshal(current, &base); err != nil {
		return delta
	}
	if err := json.Unmarshal(delta, &patch); err != nil {
		return current
	}
	for k, v := range patch {
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return current
	}
	return merged
}

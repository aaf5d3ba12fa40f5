package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

const testPage = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

func newTestConn(h *Hub, connID, userID, username string) *Conn {
	// 测试里不真正升级 WebSocket：hub 只往 send 通道里投消息
	return NewConn(nil, h, nil, connID, userID, username)
}

func recvMessage(t *testing.T, c *Conn) OutboundMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("conn %s: no message received", c.connID)
		return nil
	}
}

func TestHub_JoinThenLeaveRemovesRoom(t *testing.T) {
	h := NewHub()
	c := newTestConn(h, "c1", "u1", "alice")

	h.Join(testPage, c)
	if got := h.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() after join = %d, want 1", got)
	}

	h.Leave(c)
	// 空房间必须被删除，不允许留下空条目
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("RoomCount() after leave = %d, want 0", got)
	}
}

func TestHub_LeaveIdempotent(t *testing.T) {
	h := NewHub()
	c := newTestConn(h, "c1", "u1", "alice")

	// 对从未加入的连接调用 Leave 是 no-op
	h.Leave(c)

	h.Join(testPage, c)
	h.Leave(c)
	h.Leave(c)
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("RoomCount() = %d, want 0", got)
	}
}

func TestHub_JoinReturnsOthersAndBroadcastsToOthersOnly(t *testing.T) {
	h := NewHub()
	c1 := newTestConn(h, "c1", "u1", "alice")
	c2 := newTestConn(h, "c2", "u2", "bob")

	others := h.Join(testPage, c1)
	if len(others) != 0 {
		t.Fatalf("first joiner got %d others, want 0", len(others))
	}

	others = h.Join(testPage, c2)
	if len(others) != 1 || others[0].ConnectionID != "c1" {
		t.Fatalf("second joiner others = %+v, want [c1]", others)
	}

	// userJoined 只发给已在场的成员，绝不发给加入者自己
	msg := recvMessage(t, c1)
	joined, ok := msg.(UserJoinedMessage)
	if !ok {
		t.Fatalf("c1 got %T, want UserJoinedMessage", msg)
	}
	if joined.Member.ConnectionID != "c2" {
		t.Fatalf("userJoined member = %s, want c2", joined.Member.ConnectionID)
	}
	select {
	case msg := <-c2.send:
		t.Fatalf("joiner received its own join broadcast: %+v", msg)
	default:
	}
}

func TestHub_LeaveBroadcastsToRemaining(t *testing.T) {
	h := NewHub()
	c1 := newTestConn(h, "c1", "u1", "alice")
	c2 := newTestConn(h, "c2", "u2", "bob")
	h.Join(testPage, c1)
	h.Join(testPage, c2)
	<-c1.send // 消费掉 userJoined

	h.Leave(c2)
	msg := recvMessage(t, c1)
	left, ok := msg.(UserLeftMessage)
	if !ok {
		t.Fatalf("c1 got %T, want UserLeftMessage", msg)
	}
	if left.ConnectionID != "c2" {
		t.Fatalf("userLeft connectionId = %s, want c2", left.ConnectionID)
	}
}

func TestHub_ConcurrentJoinSamePageOneRoom(t *testing.T) {
	h := NewHub()

	const n = 16
	var wg sync.WaitGroup
	conns := make([]*Conn, n)
	for i := 0; i < n; i++ {
		conns[i] = newTestConn(h, "c"+string(rune('a'+i)), "u", "user")
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			h.Join(testPage, c)
		}(conns[i])
	}
	wg.Wait()

	// 并发创建同一个新页面的房间必须收敛成一个
	if got := h.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() = %d, want 1", got)
	}
	if got := len(h.Presence(testPage)); got != n {
		t.Fatalf("Presence() = %d members, want %d", got, n)
	}
}

func TestHub_SwitchRoomLeavesOldRoom(t *testing.T) {
	h := NewHub()
	const otherPage = "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	c := newTestConn(h, "c1", "u1", "alice")

	h.Join(testPage, c)
	h.Join(otherPage, c)

	// 连接同一时刻至多属于一个房间
	if got := len(h.Presence(testPage)); got != 0 {
		t.Fatalf("old room still has %d members, want 0", got)
	}
	if got := len(h.Presence(otherPage)); got != 1 {
		t.Fatalf("new room has %d members, want 1", got)
	}
	if got := h.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() = %d, want 1", got)
	}
}

func TestHub_UpdatePresenceMergesAndBroadcasts(t *testing.T) {
	h := NewHub()
	c1 := newTestConn(h, "c1", "u1", "alice")
	c2 := newTestConn(h, "c2", "u2", "bob")
	h.Join(testPage, c1)
	h.Join(testPage, c2)
	<-c1.send // userJoined

	h.UpdatePresence(c2, json.RawMessage(`{"cursor":{"x":1}}`))
	h.UpdatePresence(c2, json.RawMessage(`{"selection":[0,4]}`))

	// 两条增量都广播给其他成员
	for i := 0; i < 2; i++ {
		msg := recvMessage(t, c1)
		if _, ok := msg.(PresenceUpdateMessage); !ok {
			t.Fatalf("c1 got %T, want PresenceUpdateMessage", msg)
		}
	}
	// 自己不收自己的 presence 更新
	select {
	case msg := <-c2.send:
		t.Fatalf("c2 received its own presence update: %+v", msg)
	default:
	}

	// 增量是合并而不是替换
	var merged map[string]json.RawMessage
	entries := h.Presence(testPage)
	for _, e := range entries {
		if e.ConnectionID != "c2" {
			continue
		}
		if err := json.Unmarshal(e.Presence, &merged); err != nil {
			t.Fatalf("unmarshal merged presence: %v", err)
		}
	}
	if _, ok := merged["cursor"]; !ok {
		t.Fatalf("merged presence lost cursor field: %v", merged)
	}
	if _, ok := merged["selection"]; !ok {
		t.Fatalf("merged presence lost selection field: %v", merged)
	}
}

func TestHub_RelayExcludesSender(t *testing.T) {
	h := NewHub()
	c1 := newTestConn(h, "c1", "u1", "alice")
	c2 := newTestConn(h, "c2", "u2", "bob")
	c3 := newTestConn(h, "c3", "u3", "carol")
	h.Join(testPage, c1)
	h.Join(testPage, c2)
	h.Join(testPage, c3)
	// 清空 join 期间的广播
	for _, c := range []*Conn{c1, c2, c3} {
		for len(c.send) > 0 {
			<-c.send
		}
	}

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	h.BroadcastUpdate(testPage, payload, "c2")

	for _, c := range []*Conn{c1, c3} {
		msg := recvMessage(t, c)
		rm, ok := msg.(RelayMessage)
		if !ok {
			t.Fatalf("%s got %T, want RelayMessage", c.connID, msg)
		}
		if rm.Type != "update" || string(rm.Payload) != string(payload) {
			t.Fatalf("%s got %+v, want update with original payload", c.connID, rm)
		}
	}
	select {
	case msg := <-c2.send:
		t.Fatalf("sender received its own update: %+v", msg)
	default:
	}
}

func TestHub_RejoinSamePageIsIdempotent(t *testing.T) {
	h := NewHub()
	a := newTestConn(h, "c-a", "u-a", "alice")
	b := newTestConn(h, "c-b", "u-b", "bob")
	h.Join(testPage, a)
	h.Join(testPage, b)
	recvMessage(t, a) // bob 首次加入的 userJoined

	// 同一个连接重复 join 同一页面：成员集不变，名单里仍然只有对方
	others := h.Join(testPage, b)
	if len(others) != 1 || others[0].ConnectionID != "c-a" {
		t.Fatalf("rejoin others = %+v, want only c-a", others)
	}
	if got := h.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() = %d, want 1", got)
	}

	// 其他成员不应再收到一次 userJoined
	select {
	case msg := <-a.send:
		t.Fatalf("rejoin rebroadcast to a: %+v, want none", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

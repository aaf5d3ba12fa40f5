package notify

import (
	"sync"
	"testing"
	"time"
)

func TestBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroker[PageNotification]()
	// 没有订阅者时直接丢弃，不报错也不保留
	b.Publish("org-1", PageNotification{EventType: PageCreated, PageID: "p1"})
	if got := b.TopicCount(); got != 0 {
		t.Fatalf("TopicCount() = %d, want 0", got)
	}
}

func TestBroker_FanOutToAllSubscribers(t *testing.T) {
	b := NewBroker[InvitationNotification]()

	const m = 3
	chans := make([]<-chan InvitationNotification, m)
	cancels := make([]func(), m)
	for i := 0; i < m; i++ {
		chans[i], cancels[i] = b.Subscribe("user-1")
	}
	if got := b.SubscriberCount("user-1"); got != m {
		t.Fatalf("SubscriberCount() = %d, want %d", got, m)
	}

	n := InvitationNotification{InvitationID: "inv-1", OrgName: "acme"}
	b.Publish("user-1", n)

	// 每个订阅者都在自己的流里收到同一条
	for i := 0; i < m; i++ {
		select {
		case got := <-chans[i]:
			if got.InvitationID != "inv-1" {
				t.Fatalf("subscriber %d got %+v, want inv-1", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive notification", i)
		}
	}

	// 退订一个不影响其余订阅者
	cancels[0]()
	b.Publish("user-1", InvitationNotification{InvitationID: "inv-2"})
	for i := 1; i < m; i++ {
		select {
		case got := <-chans[i]:
			if got.InvitationID != "inv-2" {
				t.Fatalf("subscriber %d got %+v, want inv-2", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive inv-2 after one unsubscribe", i)
		}
	}
	// 已退订的通道被关闭
	if _, ok := <-chans[0]; ok {
		t.Fatalf("cancelled subscriber channel should be closed")
	}

	for i := 1; i < m; i++ {
		cancels[i]()
	}
	if got := b.TopicCount(); got != 0 {
		t.Fatalf("TopicCount() after all unsubscribed = %d, want 0", got)
	}
}

func TestBroker_PerSubscriberOrder(t *testing.T) {
	b := NewBroker[PageNotification]()
	ch, cancel := b.Subscribe("org-1")
	defer cancel()

	// 同一主题的发布顺序在单个订阅者的流里不允许乱序
	for i := 0; i < 10; i++ {
		b.Publish("org-1", PageNotification{EventType: PageCreated, PageID: pageID(i)})
	}
	for i := 0; i < 10; i++ {
		select {
		case got := <-ch:
			if got.PageID != pageID(i) {
				t.Fatalf("message %d = %s, want %s", i, got.PageID, pageID(i))
			}
		case <-time.After(time.Second):
			t.Fatalf("missing message %d", i)
		}
	}
}

func TestBroker_CancelIdempotent(t *testing.T) {
	b := NewBroker[PageNotification]()
	_, cancel := b.Subscribe("org-1")
	cancel()
	// 重复退订是 no-op，不能 panic 也不能重复关闭通道
	cancel()
	if got := b.TopicCount(); got != 0 {
		t.Fatalf("TopicCount() = %d, want 0", got)
	}
}

func TestBroker_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker[PageNotification]()
	slow, cancelSlow := b.Subscribe("org-1")
	defer cancelSlow()
	fast, cancelFast := b.Subscribe("org-1")
	defer cancelFast()

	// slow 不消费，把它的缓冲灌满之后继续发布
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish("org-1", PageNotification{PageID: pageID(i)})
	}

	// fast 的缓冲同样有限，但前 subscriberBuffer 条必须完整、按序到达
	for i := 0; i < subscriberBuffer; i++ {
		select {
		case got := <-fast:
			if got.PageID != pageID(i) {
				t.Fatalf("fast subscriber message %d = %s, want %s", i, got.PageID, pageID(i))
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber starved at message %d", i)
		}
	}
	_ = slow
}

func TestBroker_ConcurrentPublishSubscribe(t *testing.T) {
	// 并发的订阅/退订和发布互相穿插时不允许崩溃或死锁
	b := NewBroker[InvitationNotification]()

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				b.Publish("user-1", InvitationNotification{InvitationID: "x"})
			}
		}()
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ch, cancel := b.Subscribe("user-1")
				// 消费一会儿再退订
				select {
				case <-ch:
				default:
				}
				cancel()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("deadlock: concurrent publish/subscribe did not finish")
	}

	if got := b.TopicCount(); got != 0 {
		t.Fatalf("TopicCount() = %d, want 0", got)
	}
}

func pageID(i int) string {
	return string(rune('a' + i%26))
}

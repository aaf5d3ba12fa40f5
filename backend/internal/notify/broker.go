package notify

import (
	"sync"
)

// 每个订阅者私有通道的缓冲大小。
// 消费慢于生产时，该订阅者自己的消息会被丢弃，不影响其他订阅者。
const subscriberBuffer = 32

type subscriber[T any] struct {
	ch chan T
	// 置位后表示已退订；由 Broker.mu 保护
	gone bool
}

// Broker 进程内按主题 fan-out 的发布/订阅组件。
// 只投递给"当前在线"的订阅者：没有订阅者时 Publish 直接丢弃，不存不重试。
// 注意：单进程实现，多实例部署时各实例只能看到自己进程内的订阅者，
// 跨实例分发走 KafkaDispatcher 的外发通道。
type Broker[T any] struct {
	mu sync.RWMutex
	// 主题键 -> 当前订阅者列表；最后一个订阅者退订时删除键，防止空条目无限增长
	topics map[string][]*subscriber[T]
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{topics: make(map[string][]*subscriber[T])}
}

// Publish 把 n 投给 key 下的每一个订阅者。
// - 没有订阅者：直接返回（设计如此，不是错误）
// - 某个订阅者缓冲已满：只丢弃它自己的这条，不阻塞其他订阅者
// 发送在读锁内完成且均为非阻塞，因此不会与退订时的 close 发生竞争。
func (b *Broker[T]) Publish(key string, n T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.topics[key] {
		if sub.gone {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			// 队列满了，丢弃这一条
		}
	}
}

// Subscribe 在 key 下注册一个新的私有通道。
// 返回只读通道和退订函数：退订幂等，调用后通道会被关闭（消费方 range 会自然退出）。
// 消费方必须保证所有退出路径都调用 cancel，否则主题条目会泄漏。
func (b *Broker[T]) Subscribe(key string) (<-chan T, func()) {
	sub := &subscriber[T]{ch: make(chan T, subscriberBuffer)}

	b.mu.Lock()
	b.topics[key] = append(b.topics[key], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.gone {
			return
		}
		sub.gone = true
		subs := b.topics[key]
		for i, s := range subs {
			if s == sub {
				b.topics[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.topics[key]) == 0 {
			delete(b.topics, key)
		}
		// 写锁内关闭：Publish 的发送都在读锁内，不可能同时进行
		close(sub.ch)
	}
	return sub.ch, cancel
}

// SubscriberCount 返回 key 下当前订阅者数量（测试与日志用）
func (b *Broker[T]) SubscriberCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[key])
}

// TopicCount 返回当前存在的主题条目数（测试用：验证空条目被清理）
func (b *Broker[T]) TopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

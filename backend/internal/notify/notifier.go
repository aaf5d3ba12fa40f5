package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Notifier 组合两个 Broker 实例和可选的 Kafka 外发通道。
// 领域侧（REST handler）只管调 Publish，不需要知道有没有订阅者在线。
type Notifier struct {
	// 邀请通知：主题键 = 被邀请人 userId
	Invitations *Broker[InvitationNotification]
	// 页面事件：主题键 = orgId
	Pages *Broker[PageNotification]

	dispatcher *KafkaDispatcher
}

// NewNotifier dispatcher 可以为 nil（比如测试环境没有 Kafka）
func NewNotifier(dispatcher *KafkaDispatcher) *Notifier {
	return &Notifier{
		Invitations: NewBroker[InvitationNotification](),
		Pages:       NewBroker[PageNotification](),
		dispatcher:  dispatcher,
	}
}

// PublishInvitation 在线广播 + 尽力镜像到 Kafka
func (n *Notifier) PublishInvitation(ctx context.Context, invitedUserID string, notification InvitationNotification) {
	n.Invitations.Publish(invitedUserID, notification)
	n.mirror(ctx, "invitation", invitedUserID, notification)
}

// PublishPageEvent 在线广播 + 尽力镜像到 Kafka
func (n *Notifier) PublishPageEvent(ctx context.Context, orgID string, notification PageNotification) {
	n.Pages.Publish(orgID, notification)
	n.mirror(ctx, "pageEvent", orgID, notification)
}

func (n *Notifier) mirror(ctx context.Context, kind, key string, payload any) {
	if n.dispatcher == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal %s egress event error: %v", kind, err)
		return
	}
	// 入队给个短超时：镜像通道拥塞时宁可丢，也不拖住发布方
	enqueueCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := n.dispatcher.Enqueue(enqueueCtx, EgressEvent{
		Kind:        kind,
		Key:         key,
		Payload:     b,
		PublishedAt: time.Now(),
	}); err != nil {
		log.Printf("enqueue %s egress event error: %v", kind, err)
	}
}

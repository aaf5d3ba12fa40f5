package notify

import (
	"encoding/json"
	"time"
)

// 页面事件类型（与前端 SSE 消费端约定的字符串，不要改动）
type PageEventType string

const (
	PageCreated PageEventType = "PageCreated"
	PageRenamed PageEventType = "PageRenamed"
	PageDeleted PageEventType = "PageDeleted"
)

// PageNotification 页面生命周期事件通知。
// 按组织 orgId 作为主题键广播给该组织下所有打开的订阅流。
type PageNotification struct {
	EventType PageEventType `json:"eventType"`
	PageID    string        `json:"pageId"`
	OrgID     string        `json:"orgId"`
	Title     string        `json:"title"`
	// 仅重命名事件携带旧标题
	OldTitle    string    `json:"oldTitle,omitempty"`
	ActorUserID string    `json:"actorUserId"`
	Timestamp   time.Time `json:"timestamp"`
}

// InvitationNotification 组织邀请通知。
// 按被邀请人 userId 作为主题键广播。
type InvitationNotification struct {
	InvitationID  string    `json:"invitationId"`
	OrgID         string    `json:"orgId"`
	OrgName       string    `json:"orgName"`
	InviterUserID string    `json:"inviterUserId"`
	InviterName   string    `json:"inviterName"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EgressEvent 镜像到 Kafka 的统一外发信封。
// 在线广播本身不落盘；离线消费者走这条 Kafka 通道。
type EgressEvent struct {
	Kind        string          `json:"kind"` // "invitation" / "pageEvent"
	Key         string          `json:"key"`  // 主题键（userId / orgId），同时作为 Kafka 分区键
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

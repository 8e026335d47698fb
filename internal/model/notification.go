package model

import (
	"encoding/json"
	"time"
)

// 通知类型
const (
	NotifyNewComment    = "new-comment"
	NotifyNewLike       = "new-like"
	NotifyNewSubscriber = "new-subscriber"
	NotifyNewMessage    = "new-message"
)

// NotificationPayload 通知载荷变体，Kind 决定哪些引用字段有效
type NotificationPayload struct {
	Kind      string `json:"kind"`
	ActorID   string `json:"actor_id"`
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Preview   string `json:"preview,omitempty"`
}

// Notification 用户通知（payload 为 JSON 文本）
type Notification struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"type:varchar(36);index:idx_notify_user;not null"`
	Payload   string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"default:false;index:idx_notify_read"`
	CreatedAt time.Time `gorm:"index:idx_notify_created"`
}

func (Notification) TableName() string { return "notifications" }

// DecodePayload 解析通知载荷
func (n *Notification) DecodePayload() (NotificationPayload, error) {
	var p NotificationPayload
	err := json.Unmarshal([]byte(n.Payload), &p)
	return p, err
}

// EncodePayload 序列化通知载荷
func EncodePayload(p NotificationPayload) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

package model

import "time"

// Message 私信（会话内按 created_at 升序展示）
type Message struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	SenderID    string     `gorm:"type:varchar(36);index:idx_msg_sender;not null"`
	RecipientID string     `gorm:"type:varchar(36);index:idx_msg_recipient;not null"`
	Text        string     `gorm:"type:text;not null"`
	ReadAt      *time.Time // 收件人已读时间，未读为空
	CreatedAt   time.Time  `gorm:"index:idx_msg_created"`
}

func (Message) TableName() string { return "messages" }

package model

import "time"

// Subscription 订阅关系（subscriber 订阅 target）
type Subscription struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	TargetID     string `gorm:"type:varchar(36);index:idx_sub_target;index:idx_sub_pair,unique;not null"`
	SubscriberID string `gorm:"type:varchar(36);not null;index:idx_sub_subscriber;index:idx_sub_pair,unique"`
	// 复合唯一键，避免重复订阅
	// idx_sub_pair = (target_id, subscriber_id)
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Subscription) TableName() string { return "subscribers" }

package model

import "time"

// Block 拉黑关系（blocker 拉黑 blocked，双向抑制可见性与投递）
type Block struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	BlockerID string `gorm:"type:varchar(36);index:idx_block_blocker;index:idx_block_pair,unique;not null"`
	BlockedID string `gorm:"type:varchar(36);index:idx_block_blocked;not null;index:idx_block_pair,unique"`
	// idx_block_pair = (blocker_id, blocked_id)
	CreatedAt time.Time
}

func (Block) TableName() string { return "blocks" }

package model

import "time"

// Profile 用户资料（id 与鉴权身份一致）
type Profile struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Username     string    `gorm:"type:varchar(32);uniqueIndex;not null"`
	DisplayName  string    `gorm:"type:varchar(64)"`
	Email        string    `gorm:"type:varchar(128);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(72);not null" json:"-"`
	Bio          string    `gorm:"type:text"`
	Location     string    `gorm:"type:varchar(128)"`
	Contact      string    `gorm:"type:varchar(128)"`
	Education    string    `gorm:"type:varchar(128)"`
	AvatarURL    string    `gorm:"type:varchar(256)"`
	LastActive   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Profile) TableName() string { return "profiles" }

package model

import "time"

// Post 内容主体（作者所有，仅作者可删除）
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string    `gorm:"type:varchar(36);index:idx_post_author;not null"`
	Text      string    `gorm:"type:text;not null"`
	MediaURL  string    `gorm:"type:varchar(256)"`
	CreatedAt time.Time `gorm:"index:idx_post_created"`
	UpdatedAt time.Time
}

func (Post) TableName() string { return "posts" }

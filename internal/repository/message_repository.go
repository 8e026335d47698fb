package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListConversation 取 (a,b) 无序对之间 cursor 之后的一页，按 (created_at, id) 升序
	ListConversation(ctx context.Context, a, b string, cursor *Cursor, limit int) ([]*model.Message, error)
	// MarkRead 收件人把来自 peer 的未读消息标记已读
	MarkRead(ctx context.Context, recipientID, peerID string) error
}

type messageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) ListConversation(ctx context.Context, a, b string, cursor *Cursor, limit int) ([]*model.Message, error) {
	var res []*model.Message
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		Order("created_at ASC, id ASC").Limit(limit)
	if cursor != nil {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	err := q.Find(&res).Error
	return res, err
}

func (r *messageRepository) MarkRead(ctx context.Context, recipientID, peerID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", recipientID, peerID).
		Update("read_at", now).Error
}

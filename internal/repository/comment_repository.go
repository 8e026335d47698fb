package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

type CommentRepository interface {
	// Create 事务内校验父帖仍存在（不变式：评论必须挂在活帖上）
	Create(ctx context.Context, postID, authorID, text string) (*model.Comment, error)
	ListByPost(ctx context.Context, postID string, offset, limit int) ([]*model.Comment, error)
	DeleteOwned(ctx context.Context, id, authorID string) error
}

type commentRepository struct{ db *gorm.DB }

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func (r *commentRepository) Create(ctx context.Context, postID, authorID, text string) (*model.Comment, error) {
	c := &model.Comment{ID: uuid.New().String(), PostID: postID, AuthorID: authorID, Text: text}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return errs.ErrNotFound
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string, offset, limit int) ([]*model.Comment, error) {
	var res []*model.Comment
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *commentRepository) DeleteOwned(ctx context.Context, id, authorID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND author_id = ?", id, authorID).Delete(&model.Comment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

// Cursor 键集分页游标：(created_at, id)
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error

	GetByID(ctx context.Context, id string) (*model.Post, error)
	// ListBefore 按 (created_at, id) 降序取 cursor 之前的一页；cursor 为 nil 取最新一页
	ListBefore(ctx context.Context, cursor *Cursor, limit int) ([]*model.Post, error)
	ListByAuthor(ctx context.Context, authorID string, cursor *Cursor, limit int) ([]*model.Post, error)
	// DeleteOwned 仅作者本人可删
	DeleteOwned(ctx context.Context, id, authorID string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, p *model.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) ListBefore(ctx context.Context, cursor *Cursor, limit int) ([]*model.Post, error) {
	var res []*model.Post
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	err := q.Find(&res).Error
	return res, err
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string, cursor *Cursor, limit int) ([]*model.Post, error) {
	var res []*model.Post
	q := r.db.WithContext(ctx).Where("author_id = ?", authorID).
		Order("created_at DESC, id DESC").Limit(limit)
	if cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	err := q.Find(&res).Error
	return res, err
}

func (r *postRepository) DeleteOwned(ctx context.Context, id, authorID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND author_id = ?", id, authorID).Delete(&model.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *postRepository) Exists(ctx context.Context, id string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

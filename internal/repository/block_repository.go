package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/esfera-conectada/internal/model"
)

type BlockRepository interface {
	// Create 幂等：重复拉黑不报错
	Create(ctx context.Context, blockerID, blockedID string) error
	Delete(ctx context.Context, blockerID, blockedID string) error
	// ListBlocked 我拉黑了谁
	ListBlocked(ctx context.Context, blockerID string) ([]string, error)
	// ListBlockers 谁拉黑了我
	ListBlockers(ctx context.Context, blockedID string) ([]string, error)
	// ExistsEither (a,b) 任一方向存在拉黑
	ExistsEither(ctx context.Context, a, b string) (bool, error)
}

type blockRepository struct{ db *gorm.DB }

func NewBlockRepository(db *gorm.DB) BlockRepository { return &blockRepository{db: db} }

func (r *blockRepository) Create(ctx context.Context, blockerID, blockedID string) error {
	b := &model.Block{ID: uuid.New().String(), BlockerID: blockerID, BlockedID: blockedID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(b).Error
}

func (r *blockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.Block{}).Error
}

func (r *blockRepository) ListBlocked(ctx context.Context, blockerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Block{}).
		Where("blocker_id = ?", blockerID).Pluck("blocked_id", &ids).Error
	return ids, err
}

func (r *blockRepository) ListBlockers(ctx context.Context, blockedID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Block{}).
		Where("blocked_id = ?", blockedID).Pluck("blocker_id", &ids).Error
	return ids, err
}

func (r *blockRepository) ExistsEither(ctx context.Context, a, b string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

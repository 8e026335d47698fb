package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/esfera-conectada/internal/model"
)

type SubscriptionRepository interface {
	// Create 幂等：重复订阅不报错
	Create(ctx context.Context, targetID, subscriberID string) error
	Delete(ctx context.Context, targetID, subscriberID string) error
	Exists(ctx context.Context, targetID, subscriberID string) (bool, error)
	// ListTargets 某用户订阅了谁（返回 target id）
	ListTargets(ctx context.Context, subscriberID string) ([]string, error)
	// ListSubscribers 谁订阅了某用户（返回 subscriber id）
	ListSubscribers(ctx context.Context, targetID string, offset, limit int) ([]string, error)
}

type subscriptionRepository struct{ db *gorm.DB }

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, targetID, subscriberID string) error {
	s := &model.Subscription{ID: uuid.New().String(), TargetID: targetID, SubscriberID: subscriberID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s).Error
}

func (r *subscriptionRepository) Delete(ctx context.Context, targetID, subscriberID string) error {
	return r.db.WithContext(ctx).
		Where("target_id = ? AND subscriber_id = ?", targetID, subscriberID).
		Delete(&model.Subscription{}).Error
}

func (r *subscriptionRepository) Exists(ctx context.Context, targetID, subscriberID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("target_id = ? AND subscriber_id = ?", targetID, subscriberID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *subscriptionRepository) ListTargets(ctx context.Context, subscriberID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscriber_id = ?", subscriberID).Pluck("target_id", &ids).Error
	return ids, err
}

func (r *subscriptionRepository) ListSubscribers(ctx context.Context, targetID string, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("target_id = ?", targetID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Pluck("subscriber_id", &ids).Error
	return ids, err
}

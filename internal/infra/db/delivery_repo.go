package db

import (
	"context"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"gorm.io/gorm"
)

type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	model := mapDeliveryToModel(*attempt)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	attempt.ID = model.ID
	attempt.CreatedAt = model.CreatedAt
	attempt.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *DeliveryRepository) Update(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	model := mapDeliveryToModel(*attempt)
	result := r.db.WithContext(ctx).Model(&deliveryAttemptModel{ID: attempt.ID}).
		Select("status", "attempts", "max_attempts", "last_attempt_at", "next_retry_at", "delivered_at", "failed_at", "error", "updated_at").
		Updates(&model)
	if err := affected(result); err != nil {
		return err
	}
	attempt.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *DeliveryRepository) GetByEventAndChannel(ctx context.Context, eventID uint, channel string) (*domain.DeliveryAttempt, error) {
	var model deliveryAttemptModel
	if err := r.db.WithContext(ctx).Where("alert_event_id = ? AND channel = ?", eventID, channel).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	attempt := mapDeliveryToDomain(model)
	return &attempt, nil
}

func (r *DeliveryRepository) ListByEvent(ctx context.Context, eventID uint) ([]domain.DeliveryAttempt, error) {
	var models []deliveryAttemptModel
	if err := r.db.WithContext(ctx).Where("alert_event_id = ?", eventID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapDeliveriesToDomain(models), nil
}

func (r *DeliveryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	var models []deliveryAttemptModel
	query := r.db.WithContext(ctx).
		Where("status IN ?", openStatuses()).
		Where("attempts < max_attempts").
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Order("next_retry_at, id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapDeliveriesToDomain(models), nil
}

func (r *DeliveryRepository) LastDelivered(ctx context.Context, key domain.AlertKey) (*time.Time, error) {
	var models []deliveryAttemptModel
	if err := r.forKey(ctx, key).
		Where("delivery_attempts.status = ? AND delivery_attempts.delivered_at IS NOT NULL", string(domain.DeliverySent)).
		Order("delivery_attempts.delivered_at DESC").
		Limit(1).
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0].DeliveredAt, nil
}

func (r *DeliveryRepository) HasInFlight(ctx context.Context, key domain.AlertKey) (bool, error) {
	var count int64
	if err := r.forKey(ctx, key).
		Where("delivery_attempts.status IN ?", openStatuses()).
		Where("delivery_attempts.attempts < delivery_attempts.max_attempts").
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *DeliveryRepository) forKey(ctx context.Context, key domain.AlertKey) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&deliveryAttemptModel{}).
		Joins("JOIN alert_events ON alert_events.id = delivery_attempts.alert_event_id").
		Where("alert_events.source_kind = ? AND alert_events.source_id = ? AND alert_events.trigger_type = ?",
			string(key.SourceKind), key.SourceID, string(key.TriggerType))
}

func openStatuses() []string {
	return []string{string(domain.DeliveryPending), string(domain.DeliveryFailed)}
}

func mapDeliveryToModel(attempt domain.DeliveryAttempt) deliveryAttemptModel {
	return deliveryAttemptModel{
		ID:            attempt.ID,
		AlertEventID:  attempt.AlertEventID,
		Channel:       attempt.Channel,
		Status:        string(attempt.Status),
		Attempts:      attempt.Attempts,
		MaxAttempts:   attempt.MaxAttempts,
		LastAttemptAt: attempt.LastAttemptAt,
		NextRetryAt:   attempt.NextRetryAt,
		DeliveredAt:   attempt.DeliveredAt,
		FailedAt:      attempt.FailedAt,
		Error:         attempt.Error,
	}
}

func mapDeliveryToDomain(model deliveryAttemptModel) domain.DeliveryAttempt {
	return domain.DeliveryAttempt{
		ID:            model.ID,
		AlertEventID:  model.AlertEventID,
		Channel:       model.Channel,
		Status:        domain.DeliveryStatus(model.Status),
		Attempts:      model.Attempts,
		MaxAttempts:   model.MaxAttempts,
		LastAttemptAt: model.LastAttemptAt,
		NextRetryAt:   model.NextRetryAt,
		DeliveredAt:   model.DeliveredAt,
		FailedAt:      model.FailedAt,
		Error:         model.Error,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func mapDeliveriesToDomain(models []deliveryAttemptModel) []domain.DeliveryAttempt {
	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for _, model := range models {
		attempts = append(attempts, mapDeliveryToDomain(model))
	}
	return attempts
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AlertEventRepository struct {
	db *gorm.DB
}

func NewAlertEventRepository(db *gorm.DB) *AlertEventRepository {
	return &AlertEventRepository{db: db}
}

func (r *AlertEventRepository) Create(ctx context.Context, event *domain.AlertEvent) error {
	model, err := mapAlertEventToModel(*event)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	event.ID = model.ID
	event.CreatedAt = model.CreatedAt
	return nil
}

func (r *AlertEventRepository) GetByID(ctx context.Context, eventID uint) (*domain.AlertEvent, error) {
	var model alertEventModel
	if err := r.db.WithContext(ctx).First(&model, eventID).Error; err != nil {
		return nil, notFound(err)
	}
	return mapAlertEventToDomain(model)
}

func (r *AlertEventRepository) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]domain.AlertEvent, error) {
	var models []alertEventModel
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("triggered_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	events := make([]domain.AlertEvent, 0, len(models))
	for _, model := range models {
		event, err := mapAlertEventToDomain(model)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}

func (r *AlertEventRepository) Acknowledge(ctx context.Context, eventID uint, at time.Time) error {
	return affected(r.db.WithContext(ctx).Model(&alertEventModel{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"acknowledged":    true,
		"acknowledged_at": at,
	}))
}

func (r *AlertEventRepository) Dismiss(ctx context.Context, eventID uint) error {
	return affected(r.db.WithContext(ctx).Model(&alertEventModel{}).Where("id = ?", eventID).Update("dismissed", true))
}

func mapAlertEventToModel(event domain.AlertEvent) (alertEventModel, error) {
	model := alertEventModel{
		ID:             event.ID,
		OwnerID:        event.OwnerID,
		SourceKind:     string(event.SourceKind),
		SourceID:       event.SourceID,
		TriggerType:    string(event.TriggerType),
		Symbol:         event.Symbol,
		TriggerValue:   event.TriggerValue,
		TriggeredAt:    event.TriggeredAt,
		Message:        event.Message,
		Acknowledged:   event.Acknowledged,
		AcknowledgedAt: event.AcknowledgedAt,
		Dismissed:      event.Dismissed,
	}
	if len(event.ConditionsMet) > 0 {
		raw, err := json.Marshal(event.ConditionsMet)
		if err != nil {
			return alertEventModel{}, fmt.Errorf("encode conditions_met: %w", err)
		}
		model.ConditionsMet = datatypes.JSON(raw)
	}
	return model, nil
}

func mapAlertEventToDomain(model alertEventModel) (*domain.AlertEvent, error) {
	event := &domain.AlertEvent{
		ID:             model.ID,
		OwnerID:        model.OwnerID,
		SourceKind:     domain.SourceKind(model.SourceKind),
		SourceID:       model.SourceID,
		Symbol:         model.Symbol,
		TriggerType:    domain.TriggerType(model.TriggerType),
		TriggerValue:   model.TriggerValue,
		TriggeredAt:    model.TriggeredAt,
		Message:        model.Message,
		Acknowledged:   model.Acknowledged,
		AcknowledgedAt: model.AcknowledgedAt,
		Dismissed:      model.Dismissed,
		CreatedAt:      model.CreatedAt,
	}
	if len(model.ConditionsMet) > 0 {
		if err := json.Unmarshal(model.ConditionsMet, &event.ConditionsMet); err != nil {
			return nil, fmt.Errorf("decode conditions_met for alert %d: %w", model.ID, err)
		}
	}
	return event, nil
}

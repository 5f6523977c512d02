package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type AlertHistoryItem struct {
	Event      domain.AlertEvent        `json:"event"`
	Deliveries []domain.DeliveryAttempt `json:"deliveries"`
}

type HistoryUsecase struct {
	users      domain.UserRepository
	events     domain.AlertEventRepository
	deliveries domain.DeliveryRepository
	now        func() time.Time
}

func NewHistoryUsecase(users domain.UserRepository, events domain.AlertEventRepository, deliveries domain.DeliveryRepository, now func() time.Time) *HistoryUsecase {
	if now == nil {
		now = time.Now
	}
	return &HistoryUsecase{users: users, events: events, deliveries: deliveries, now: now}
}

func (u *HistoryUsecase) History(ctx context.Context, telegramUserID int64, limit int) ([]AlertHistoryItem, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	return u.OwnerHistory(ctx, owner.ID, limit)
}

func (u *HistoryUsecase) OwnerHistory(ctx context.Context, ownerID uint, limit int) ([]AlertHistoryItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	events, err := u.events.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]AlertHistoryItem, 0, len(events))
	for _, event := range events {
		attempts, err := u.deliveries.ListByEvent(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, AlertHistoryItem{Event: event, Deliveries: attempts})
	}
	return items, nil
}

func (u *HistoryUsecase) Acknowledge(ctx context.Context, telegramUserID int64, eventID uint) error {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return err
	}
	event, err := u.events.GetByID(ctx, eventID)
	if err != nil {
		return mapAlertErr(err)
	}
	if event.OwnerID != owner.ID {
		return ErrAlertNotFound
	}
	return u.AcknowledgeEvent(ctx, eventID)
}

func (u *HistoryUsecase) AcknowledgeEvent(ctx context.Context, eventID uint) error {
	return mapAlertErr(u.events.Acknowledge(ctx, eventID, u.now()))
}

func (u *HistoryUsecase) DismissEvent(ctx context.Context, eventID uint) error {
	return mapAlertErr(u.events.Dismiss(ctx, eventID))
}

func mapAlertErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrAlertNotFound
	}
	return err
}

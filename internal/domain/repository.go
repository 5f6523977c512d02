package domain

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetByTelegramID(ctx context.Context, telegramUserID int64) (*User, error)
	GetByID(ctx context.Context, userID uint) (*User, error)
	Create(ctx context.Context, user *User) error
}

type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, ruleID uint) (*Rule, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]Rule, error)
	ListEnabled(ctx context.Context) ([]Rule, error)
	SetEnabled(ctx context.Context, ruleID uint, enabled bool) error
	SetSnoozedUntil(ctx context.Context, ruleID uint, until *time.Time) error
	RecordTrigger(ctx context.Context, ruleID uint, at time.Time) error
	Delete(ctx context.Context, ruleID uint) error
}

type SubjectRepository interface {
	Create(ctx context.Context, subject *WatchedSubject) error
	GetByID(ctx context.Context, subjectID uint) (*WatchedSubject, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]WatchedSubject, error)
	ListActive(ctx context.Context) ([]WatchedSubject, error)
	// UpdateStatus moves a subject from one status to another and returns
	// ErrStaleStatus when the stored status no longer equals from.
	UpdateStatus(ctx context.Context, subjectID uint, from, to SubjectStatus) error
	SetMutedUntil(ctx context.Context, subjectID uint, until *time.Time) error
	MarkAlerted(ctx context.Context, subjectID uint, at time.Time) error
	Rearm(ctx context.Context, subjectID uint) error
	Delete(ctx context.Context, subjectID uint) error
}

type AlertEventRepository interface {
	Create(ctx context.Context, event *AlertEvent) error
	GetByID(ctx context.Context, eventID uint) (*AlertEvent, error)
	ListByOwner(ctx context.Context, ownerID uint, limit int) ([]AlertEvent, error)
	Acknowledge(ctx context.Context, eventID uint, at time.Time) error
	Dismiss(ctx context.Context, eventID uint) error
}

type DeliveryRepository interface {
	Create(ctx context.Context, attempt *DeliveryAttempt) error
	Update(ctx context.Context, attempt *DeliveryAttempt) error
	GetByEventAndChannel(ctx context.Context, eventID uint, channel string) (*DeliveryAttempt, error)
	ListByEvent(ctx context.Context, eventID uint) ([]DeliveryAttempt, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]DeliveryAttempt, error)
	LastDelivered(ctx context.Context, key AlertKey) (*time.Time, error)
	HasInFlight(ctx context.Context, key AlertKey) (bool, error)
}

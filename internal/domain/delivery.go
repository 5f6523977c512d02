package domain

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type DeliveryAttempt struct {
	ID            uint
	AlertEventID  uint
	Channel       string
	Status        DeliveryStatus
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time
	DeliveredAt   *time.Time
	FailedAt      *time.Time
	Error         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a DeliveryAttempt) Terminal() bool {
	return a.Status == DeliverySent || a.Attempts >= a.MaxAttempts
}

func (a DeliveryAttempt) Due(now time.Time) bool {
	if a.Terminal() || a.NextRetryAt == nil {
		return false
	}
	return !now.Before(*a.NextRetryAt)
}

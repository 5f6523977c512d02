package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("invalid price level")
	ErrStaleStatus  = errors.New("subject status changed concurrently")
)

type SubjectStatus string

const (
	StatusWatching    SubjectStatus = "watching"
	StatusBreakingOut SubjectStatus = "breaking_out"
	StatusTriggered   SubjectStatus = "triggered"
	StatusCompleted   SubjectStatus = "completed"
)

func (s SubjectStatus) rank() int {
	switch s {
	case StatusWatching:
		return 0
	case StatusBreakingOut:
		return 1
	case StatusTriggered:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

func (s SubjectStatus) Terminal() bool {
	return s == StatusTriggered || s == StatusCompleted
}

func (s SubjectStatus) CanAdvance(next SubjectStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

type WatchedSubject struct {
	ID            uint
	OwnerID       uint
	Symbol        string
	Status        SubjectStatus
	TargetEntry   *decimal.Decimal
	TargetStop    *decimal.Decimal
	TargetPrice   *decimal.Decimal
	Frequency     Frequency
	LastAlertedAt *time.Time
	MutedUntil    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

func (s WatchedSubject) Muted(now time.Time) bool {
	return s.MutedUntil != nil && now.Before(*s.MutedUntil)
}

func (s WatchedSubject) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidPrice)
	}
	for _, level := range []*decimal.Decimal{s.TargetEntry, s.TargetStop, s.TargetPrice} {
		if level != nil && !level.IsPositive() {
			return ErrInvalidPrice
		}
	}
	if s.TargetEntry == nil && s.TargetStop == nil && s.TargetPrice == nil {
		return fmt.Errorf("%w: no levels set", ErrInvalidPrice)
	}
	if s.TargetStop != nil && s.TargetPrice != nil && !s.TargetStop.LessThan(*s.TargetPrice) {
		return fmt.Errorf("%w: stop must be below target", ErrInvalidPrice)
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return err
	}
	return nil
}

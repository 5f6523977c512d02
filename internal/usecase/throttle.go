package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
)

type ThrottleRequest struct {
	Key             domain.AlertKey
	Frequency       domain.Frequency
	MutedUntil      *time.Time
	Cooldown        time.Duration
	LastTriggeredAt *time.Time
}

type ThrottleDecision struct {
	Emit   bool
	Reason string
}

// ThrottlePolicy decides whether a detected trigger becomes an alert. It
// consults delivered history only: a trigger whose earlier alert failed on
// every channel is allowed again.
type ThrottlePolicy struct {
	deliveries domain.DeliveryRepository
	now        func() time.Time
}

func NewThrottlePolicy(deliveries domain.DeliveryRepository, now func() time.Time) *ThrottlePolicy {
	if now == nil {
		now = time.Now
	}
	return &ThrottlePolicy{deliveries: deliveries, now: now}
}

func (p *ThrottlePolicy) Decide(ctx context.Context, req ThrottleRequest) (ThrottleDecision, error) {
	now := p.now()

	if req.MutedUntil != nil && now.Before(*req.MutedUntil) {
		return suppress("muted until %s", req.MutedUntil.UTC().Format(time.RFC3339)), nil
	}
	if req.Cooldown > 0 && req.LastTriggeredAt != nil && now.Before(req.LastTriggeredAt.Add(req.Cooldown)) {
		return suppress("cooldown until %s", req.LastTriggeredAt.Add(req.Cooldown).UTC().Format(time.RFC3339)), nil
	}

	var window time.Duration
	switch req.Frequency {
	case domain.FrequencyDisabled:
		return suppress("alerts disabled"), nil
	case domain.FrequencyAlways:
		return ThrottleDecision{Emit: true, Reason: "always"}, nil
	case domain.FrequencyOnce, "":
		window = 0
	case domain.FrequencyHourly:
		window = time.Hour
	case domain.FrequencyDaily:
		window = 24 * time.Hour
	default:
		return ThrottleDecision{}, fmt.Errorf("%w: %q", domain.ErrInvalidFrequency, req.Frequency)
	}

	last, err := p.deliveries.LastDelivered(ctx, req.Key)
	if err != nil {
		return ThrottleDecision{}, fmt.Errorf("load delivery history: %w", err)
	}
	if window == 0 && last != nil {
		return suppress("already delivered at %s", last.UTC().Format(time.RFC3339)), nil
	}
	if last != nil && now.Sub(*last) < window {
		return suppress("delivered %s ago", now.Sub(*last).Round(time.Second)), nil
	}

	// a pending retry may still land and would count against the window
	inFlight, err := p.deliveries.HasInFlight(ctx, req.Key)
	if err != nil {
		return ThrottleDecision{}, fmt.Errorf("load pending deliveries: %w", err)
	}
	if inFlight {
		return suppress("earlier alert still being delivered"), nil
	}
	if last == nil {
		return ThrottleDecision{Emit: true, Reason: "first delivery"}, nil
	}
	return ThrottleDecision{Emit: true, Reason: "window elapsed"}, nil
}

func suppress(format string, args ...any) ThrottleDecision {
	return ThrottleDecision{Emit: false, Reason: fmt.Sprintf(format, args...)}
}

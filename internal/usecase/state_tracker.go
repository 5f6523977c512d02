package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var breakoutVolumeRatio = decimal.RequireFromString("1.5")

const defaultHistoryRetention = 2 * time.Hour

type Transition struct {
	SubjectID    uint
	OldStatus    domain.SubjectStatus
	NewStatus    domain.SubjectStatus
	TriggerType  domain.TriggerType
	CurrentPrice decimal.Decimal
	Level        decimal.Decimal
	VolumeRatio  *decimal.Decimal
}

type ruleState struct {
	lastCheckedAt time.Time
	matched       bool
}

type StateTracker struct {
	subjects  domain.SubjectRepository
	retention time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	history map[string][]domain.Quote
	rules   map[uint]ruleState
}

func NewStateTracker(subjects domain.SubjectRepository, retention time.Duration, logger *zap.Logger) *StateTracker {
	if retention <= 0 {
		retention = defaultHistoryRetention
	}
	return &StateTracker{
		subjects:  subjects,
		retention: retention,
		logger:    logger,
		history:   make(map[string][]domain.Quote),
		rules:     make(map[uint]ruleState),
	}
}

// Detect computes the transition a quote causes without persisting it. The
// stop level is checked before the target, so a poll breaching both reports
// stop_hit.
func Detect(subject domain.WatchedSubject, quote domain.Quote) *Transition {
	if subject.Status.Terminal() || quote.Price == nil {
		return nil
	}
	price := *quote.Price
	base := Transition{SubjectID: subject.ID, OldStatus: subject.Status, CurrentPrice: price}

	if subject.TargetStop != nil && price.LessThan(*subject.TargetStop) {
		base.NewStatus = domain.StatusTriggered
		base.TriggerType = domain.TriggerStopHit
		base.Level = *subject.TargetStop
		return &base
	}
	if subject.TargetPrice != nil && price.GreaterThan(*subject.TargetPrice) {
		base.NewStatus = domain.StatusTriggered
		base.TriggerType = domain.TriggerTargetHit
		base.Level = *subject.TargetPrice
		return &base
	}
	if subject.Status == domain.StatusWatching && subject.TargetEntry != nil && price.GreaterThan(*subject.TargetEntry) {
		ratio := quote.RelativeVolume()
		if ratio != nil && ratio.GreaterThan(breakoutVolumeRatio) {
			base.NewStatus = domain.StatusBreakingOut
			base.TriggerType = domain.TriggerBreakout
			base.Level = *subject.TargetEntry
			base.VolumeRatio = ratio
			return &base
		}
	}
	return nil
}

// Apply detects and persists a transition. The new status is stored before
// any notification decision so the same transition is not recomputed on the
// next cycle.
func (t *StateTracker) Apply(ctx context.Context, subject *domain.WatchedSubject, quote domain.Quote) (*Transition, error) {
	transition := Detect(*subject, quote)
	if transition == nil {
		return nil, nil
	}
	if !transition.OldStatus.CanAdvance(transition.NewStatus) {
		return nil, fmt.Errorf("illegal transition %s -> %s", transition.OldStatus, transition.NewStatus)
	}

	if err := t.subjects.UpdateStatus(ctx, subject.ID, transition.OldStatus, transition.NewStatus); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			t.logger.Warn("subject status changed underneath tracker", zap.Uint("subject_id", subject.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("persist subject status: %w", err)
	}
	subject.Status = transition.NewStatus

	t.logger.Info(
		"subject transition",
		zap.Uint("subject_id", subject.ID),
		zap.String("symbol", subject.Symbol),
		zap.String("from", string(transition.OldStatus)),
		zap.String("to", string(transition.NewStatus)),
		zap.String("trigger_type", string(transition.TriggerType)),
		zap.String("price", transition.CurrentPrice.String()),
	)
	return transition, nil
}

func (t *StateTracker) History(symbol string) []domain.Quote {
	t.mu.Lock()
	defer t.mu.Unlock()
	samples := t.history[symbol]
	out := make([]domain.Quote, len(samples))
	copy(out, samples)
	return out
}

func (t *StateTracker) Observe(symbol string, quote domain.Quote) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.history[symbol]
	if n := len(samples); n > 0 && !quote.Timestamp.After(samples[n-1].Timestamp) {
		return
	}
	samples = append(samples, quote)

	// keep one sample at or before the cutoff so a full window stays covered
	cutoff := quote.Timestamp.Add(-t.retention)
	drop := 0
	for drop+1 < len(samples) && !samples[drop+1].Timestamp.After(cutoff) {
		drop++
	}
	t.history[symbol] = append([]domain.Quote(nil), samples[drop:]...)
}

func (t *StateTracker) RuleDue(ruleID uint, checkFrequency time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.rules[ruleID]
	if !ok || checkFrequency <= 0 {
		return true
	}
	return !now.Before(state.lastCheckedAt.Add(checkFrequency))
}

func (t *StateTracker) RecordRuleMatch(ruleID uint, matched bool, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous := t.rules[ruleID]
	t.rules[ruleID] = ruleState{lastCheckedAt: now, matched: matched}
	return matched && !previous.matched
}

func (t *StateTracker) ForgetRule(ruleID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rules, ruleID)
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
)

type RuleRequest struct {
	Symbol         string
	Logic          string
	Frequency      string
	Conditions     []string
	CheckFrequency time.Duration
	Cooldown       time.Duration
}

type RuleForgetter interface {
	ForgetRule(ruleID uint)
}

type RuleUsecase struct {
	users   domain.UserRepository
	rules   domain.RuleRepository
	tracker RuleForgetter
	now     func() time.Time
}

func NewRuleUsecase(users domain.UserRepository, rules domain.RuleRepository, tracker RuleForgetter, now func() time.Time) *RuleUsecase {
	if now == nil {
		now = time.Now
	}
	return &RuleUsecase{users: users, rules: rules, tracker: tracker, now: now}
}

func (u *RuleUsecase) CreateRule(ctx context.Context, telegramUserID int64, req RuleRequest) (*domain.Rule, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	symbol, err := NormalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	logic, err := domain.ParseLogic(req.Logic)
	if err != nil {
		return nil, err
	}
	frequency, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}

	conditions := make([]domain.Condition, 0, len(req.Conditions))
	for _, text := range req.Conditions {
		if strings.TrimSpace(text) == "" {
			continue
		}
		cond, err := domain.ParseCondition(text)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	rule := &domain.Rule{
		OwnerID:        owner.ID,
		Symbol:         symbol,
		Conditions:     conditions,
		Logic:          logic,
		Frequency:      frequency,
		Enabled:        true,
		CheckFrequency: req.CheckFrequency,
		CooldownPeriod: req.Cooldown,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := u.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (u *RuleUsecase) List(ctx context.Context, telegramUserID int64) ([]domain.Rule, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	return u.rules.ListByOwner(ctx, owner.ID)
}

func (u *RuleUsecase) SetEnabled(ctx context.Context, telegramUserID int64, ruleID uint, enabled bool) error {
	if _, err := u.owned(ctx, telegramUserID, ruleID); err != nil {
		return err
	}
	if err := u.rules.SetEnabled(ctx, ruleID, enabled); err != nil {
		return mapRuleErr(err)
	}
	u.tracker.ForgetRule(ruleID)
	return nil
}

func (u *RuleUsecase) Snooze(ctx context.Context, telegramUserID int64, ruleID uint, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	if _, err := u.owned(ctx, telegramUserID, ruleID); err != nil {
		return time.Time{}, err
	}
	until := u.now().Add(duration)
	if err := u.rules.SetSnoozedUntil(ctx, ruleID, &until); err != nil {
		return time.Time{}, mapRuleErr(err)
	}
	return until, nil
}

func (u *RuleUsecase) Delete(ctx context.Context, telegramUserID int64, ruleID uint) error {
	if _, err := u.owned(ctx, telegramUserID, ruleID); err != nil {
		return err
	}
	if err := u.rules.Delete(ctx, ruleID); err != nil {
		return mapRuleErr(err)
	}
	u.tracker.ForgetRule(ruleID)
	return nil
}

func (u *RuleUsecase) owned(ctx context.Context, telegramUserID int64, ruleID uint) (*domain.Rule, error) {
	owner, err := resolveOwner(ctx, u.users, telegramUserID)
	if err != nil {
		return nil, err
	}
	rule, err := u.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, mapRuleErr(err)
	}
	if rule.OwnerID != owner.ID {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

func mapRuleErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrRuleNotFound
	}
	return err
}

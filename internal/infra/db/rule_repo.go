package db

import (
	"context"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"gorm.io/gorm"
)

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	model := mapRuleToModel(*rule)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	rule.ID = model.ID
	rule.CreatedAt = model.CreatedAt
	rule.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, ruleID uint) (*domain.Rule, error) {
	var model ruleModel
	if err := r.withConditions(ctx).First(&model, ruleID).Error; err != nil {
		return nil, notFound(err)
	}
	rule := mapRuleToDomain(model)
	return &rule, nil
}

func (r *RuleRepository) ListByOwner(ctx context.Context, ownerID uint) ([]domain.Rule, error) {
	var models []ruleModel
	if err := r.withConditions(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapRulesToDomain(models), nil
}

func (r *RuleRepository) ListEnabled(ctx context.Context) ([]domain.Rule, error) {
	var models []ruleModel
	if err := r.withConditions(ctx).Where("enabled = ?", true).Order("symbol, id").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapRulesToDomain(models), nil
}

func (r *RuleRepository) SetEnabled(ctx context.Context, ruleID uint, enabled bool) error {
	return affected(r.db.WithContext(ctx).Model(&ruleModel{}).Where("id = ?", ruleID).Update("enabled", enabled))
}

func (r *RuleRepository) SetSnoozedUntil(ctx context.Context, ruleID uint, until *time.Time) error {
	return affected(r.db.WithContext(ctx).Model(&ruleModel{}).Where("id = ?", ruleID).Update("snoozed_until", until))
}

func (r *RuleRepository) RecordTrigger(ctx context.Context, ruleID uint, at time.Time) error {
	return affected(r.db.WithContext(ctx).Model(&ruleModel{}).Where("id = ?", ruleID).Updates(map[string]interface{}{
		"last_triggered_at": at,
		"trigger_count":     gorm.Expr("trigger_count + ?", 1),
	}))
}

func (r *RuleRepository) Delete(ctx context.Context, ruleID uint) error {
	return affected(r.db.WithContext(ctx).Delete(&ruleModel{}, ruleID))
}

func (r *RuleRepository) withConditions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Conditions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position")
	})
}

func mapRuleToModel(rule domain.Rule) ruleModel {
	conditions := make([]ruleConditionModel, 0, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		conditions = append(conditions, ruleConditionModel{
			Position:          i,
			Field:             string(cond.Field),
			Operator:          string(cond.Operator),
			Value:             cond.Value,
			TimeWindowSeconds: int64(cond.TimeWindow / time.Second),
		})
	}
	return ruleModel{
		ID:                    rule.ID,
		OwnerID:               rule.OwnerID,
		Symbol:                rule.Symbol,
		Logic:                 string(rule.Logic),
		Frequency:             string(rule.Frequency),
		Enabled:               rule.Enabled,
		SnoozedUntil:          rule.SnoozedUntil,
		CheckFrequencySeconds: int64(rule.CheckFrequency / time.Second),
		CooldownSeconds:       int64(rule.CooldownPeriod / time.Second),
		LastTriggeredAt:       rule.LastTriggeredAt,
		TriggerCount:          rule.TriggerCount,
		Conditions:            conditions,
	}
}

func mapRuleToDomain(model ruleModel) domain.Rule {
	conditions := make([]domain.Condition, 0, len(model.Conditions))
	for _, cond := range model.Conditions {
		conditions = append(conditions, domain.Condition{
			Field:      domain.Field(cond.Field),
			Operator:   domain.Operator(cond.Operator),
			Value:      cond.Value,
			TimeWindow: time.Duration(cond.TimeWindowSeconds) * time.Second,
		})
	}
	return domain.Rule{
		ID:              model.ID,
		OwnerID:         model.OwnerID,
		Symbol:          model.Symbol,
		Conditions:      conditions,
		Logic:           domain.ConditionLogic(model.Logic),
		Frequency:       domain.Frequency(model.Frequency),
		Enabled:         model.Enabled,
		SnoozedUntil:    model.SnoozedUntil,
		CheckFrequency:  time.Duration(model.CheckFrequencySeconds) * time.Second,
		CooldownPeriod:  time.Duration(model.CooldownSeconds) * time.Second,
		LastTriggeredAt: model.LastTriggeredAt,
		TriggerCount:    model.TriggerCount,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func mapRulesToDomain(models []ruleModel) []domain.Rule {
	rules := make([]domain.Rule, 0, len(models))
	for _, model := range models {
		rules = append(rules, mapRuleToDomain(model))
	}
	return rules
}

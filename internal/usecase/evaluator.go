package usecase

import (
	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/shopspring/decimal"
)

type Evaluation struct {
	Matched       bool
	ConditionsMet []domain.ConditionResult
}

type ConditionEvaluator struct{}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

func (e *ConditionEvaluator) Evaluate(conditions []domain.Condition, logic domain.ConditionLogic, current domain.Quote, history []domain.Quote) Evaluation {
	result := Evaluation{ConditionsMet: make([]domain.ConditionResult, 0, len(conditions))}
	if len(conditions) == 0 {
		return result
	}

	matchedCount := 0
	for _, cond := range conditions {
		met := e.evaluateCondition(cond, current, history)
		if met {
			matchedCount++
		}
		result.ConditionsMet = append(result.ConditionsMet, domain.ConditionResult{Condition: cond.String(), Met: met})
	}

	if logic == domain.LogicOr {
		result.Matched = matchedCount > 0
	} else {
		result.Matched = matchedCount == len(conditions)
	}
	return result
}

func (e *ConditionEvaluator) evaluateCondition(cond domain.Condition, current domain.Quote, history []domain.Quote) bool {
	currentValue, ok := current.Value(cond.Field)
	if !ok {
		return false
	}

	if cond.Operator.IsCrossing() {
		reference, ok := referenceSample(cond, current, history)
		if !ok {
			return false
		}
		previousValue, ok := reference.Value(cond.Field)
		if !ok {
			return false
		}
		return crosses(cond.Operator, previousValue, currentValue, cond.Value)
	}

	if cond.TimeWindow <= 0 {
		return compare(cond.Operator, currentValue, cond.Value)
	}

	samples, ok := windowSamples(cond, current, history)
	if !ok {
		return false
	}
	for _, sample := range samples {
		value, ok := sample.Value(cond.Field)
		if !ok || !compare(cond.Operator, value, cond.Value) {
			return false
		}
	}
	return true
}

func compare(op domain.Operator, value, threshold decimal.Decimal) bool {
	switch op {
	case domain.OpGreater:
		return value.GreaterThan(threshold)
	case domain.OpLess:
		return value.LessThan(threshold)
	case domain.OpGreaterOrEqual:
		return value.GreaterThanOrEqual(threshold)
	case domain.OpLessOrEqual:
		return value.LessThanOrEqual(threshold)
	case domain.OpEqual:
		return value.Equal(threshold)
	default:
		return false
	}
}

func crosses(op domain.Operator, previous, current, threshold decimal.Decimal) bool {
	switch op {
	case domain.OpCrossesAbove:
		return previous.LessThanOrEqual(threshold) && current.GreaterThan(threshold)
	case domain.OpCrossesBelow:
		return previous.GreaterThanOrEqual(threshold) && current.LessThan(threshold)
	default:
		return false
	}
}

func referenceSample(cond domain.Condition, current domain.Quote, history []domain.Quote) (domain.Quote, bool) {
	if len(history) == 0 {
		return domain.Quote{}, false
	}
	if cond.TimeWindow <= 0 {
		return history[len(history)-1], true
	}
	samples, ok := windowSamples(cond, current, history)
	if !ok {
		return domain.Quote{}, false
	}
	return samples[0], true
}

// windowSamples returns the sample in effect at the window start followed by
// every later sample and current. ok is false when history does not reach
// back to the start of the window.
func windowSamples(cond domain.Condition, current domain.Quote, history []domain.Quote) ([]domain.Quote, bool) {
	start := current.Timestamp.Add(-cond.TimeWindow)
	anchor := -1
	for i, sample := range history {
		if sample.Timestamp.After(start) {
			break
		}
		anchor = i
	}
	if anchor < 0 {
		return nil, false
	}
	samples := make([]domain.Quote, 0, len(history)-anchor+1)
	samples = append(samples, history[anchor:]...)
	samples = append(samples, current)
	return samples, true
}

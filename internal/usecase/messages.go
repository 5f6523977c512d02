package usecase

import (
	"fmt"
	"strings"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
)

func renderTransitionMessage(subject domain.WatchedSubject, t Transition) string {
	switch t.TriggerType {
	case domain.TriggerBreakout:
		ratio := "n/a"
		if t.VolumeRatio != nil {
			ratio = t.VolumeRatio.StringFixed(2) + "x"
		}
		return fmt.Sprintf("🚀 %s breakout: price %s above entry %s (rel vol %s)", subject.Symbol, t.CurrentPrice.String(), t.Level.String(), ratio)
	case domain.TriggerStopHit:
		return fmt.Sprintf("🛑 %s stop hit: price %s below stop %s", subject.Symbol, t.CurrentPrice.String(), t.Level.String())
	case domain.TriggerTargetHit:
		return fmt.Sprintf("🎯 %s target hit: price %s above target %s", subject.Symbol, t.CurrentPrice.String(), t.Level.String())
	default:
		return fmt.Sprintf("%s %s at %s", subject.Symbol, t.TriggerType, t.CurrentPrice.String())
	}
}

func renderRuleMessage(rule domain.Rule, eval Evaluation) string {
	parts := make([]string, 0, len(eval.ConditionsMet))
	for _, result := range eval.ConditionsMet {
		mark := "✗"
		if result.Met {
			mark = "✓"
		}
		parts = append(parts, result.Condition+" "+mark)
	}
	return fmt.Sprintf("🔔 %s rule #%d matched (%s): %s", rule.Symbol, rule.ID, rule.Logic, strings.Join(parts, ", "))
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRule      = errors.New("invalid rule")
	ErrEmptyConditions  = errors.New("rule has no conditions")
	ErrInvalidField     = errors.New("invalid condition field")
	ErrInvalidOperator  = errors.New("invalid condition operator")
	ErrInvalidValue     = errors.New("invalid condition value")
	ErrInvalidWindow    = errors.New("invalid condition time window")
	ErrInvalidLogic     = errors.New("invalid condition logic")
	ErrInvalidFrequency = errors.New("invalid alert frequency")
)

type Field string

const (
	FieldPrice          Field = "price"
	FieldVolume         Field = "volume"
	FieldAvgVolume      Field = "avg_volume"
	FieldRelativeVolume Field = "relative_volume"
)

func ParseField(input string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(input))) {
	case FieldPrice:
		return FieldPrice, nil
	case FieldVolume:
		return FieldVolume, nil
	case FieldAvgVolume, "avgvolume", "avg_vol":
		return FieldAvgVolume, nil
	case FieldRelativeVolume, "rel_volume", "rvol":
		return FieldRelativeVolume, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidField, input)
	}
}

type Operator string

const (
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpCrossesAbove   Operator = "crosses_above"
	OpCrossesBelow   Operator = "crosses_below"
)

func ParseOperator(input string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case ">", "gt":
		return OpGreater, nil
	case "<", "lt":
		return OpLess, nil
	case ">=", "gte":
		return OpGreaterOrEqual, nil
	case "<=", "lte":
		return OpLessOrEqual, nil
	case "==", "=", "eq":
		return OpEqual, nil
	case "crosses_above", "cross_above":
		return OpCrossesAbove, nil
	case "crosses_below", "cross_below":
		return OpCrossesBelow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, input)
	}
}

func (o Operator) IsCrossing() bool {
	return o == OpCrossesAbove || o == OpCrossesBelow
}

type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

func ParseLogic(input string) (ConditionLogic, error) {
	switch ConditionLogic(strings.ToUpper(strings.TrimSpace(input))) {
	case LogicAnd, "":
		return LogicAnd, nil
	case LogicOr:
		return LogicOr, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLogic, input)
	}
}

type Frequency string

const (
	FrequencyDisabled Frequency = "disabled"
	FrequencyOnce     Frequency = "once"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyAlways   Frequency = "always"
)

func ParseFrequency(input string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(input))) {
	case FrequencyOnce, "":
		return FrequencyOnce, nil
	case FrequencyDisabled:
		return FrequencyDisabled, nil
	case FrequencyHourly:
		return FrequencyHourly, nil
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyAlways:
		return FrequencyAlways, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, input)
	}
}

type Condition struct {
	Field      Field
	Operator   Operator
	Value      decimal.Decimal
	TimeWindow time.Duration
}

func (c Condition) Validate() error {
	if _, err := ParseField(string(c.Field)); err != nil {
		return err
	}
	if _, err := ParseOperator(string(c.Operator)); err != nil {
		return err
	}
	if c.TimeWindow < 0 {
		return ErrInvalidWindow
	}
	return nil
}

func (c Condition) String() string {
	text := fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value.String())
	if c.TimeWindow > 0 {
		text += " " + c.TimeWindow.String()
	}
	return text
}

var symbolOperators = []string{">=", "<=", "==", ">", "<", "="}

// ParseCondition parses "field op value [window]", e.g. "price>50",
// "volume >= 1000000" or "price crosses_above 120 15m".
func ParseCondition(text string) (Condition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Condition{}, fmt.Errorf("%w: empty condition", ErrInvalidRule)
	}

	parts := strings.Fields(text)
	if len(parts) < 3 {
		parts = splitSymbolOperator(text)
	}
	if len(parts) < 3 || len(parts) > 4 {
		return Condition{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
	}

	field, err := ParseField(parts[0])
	if err != nil {
		return Condition{}, err
	}
	op, err := ParseOperator(parts[1])
	if err != nil {
		return Condition{}, err
	}
	value, err := decimal.NewFromString(parts[2])
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %q", ErrInvalidValue, parts[2])
	}

	cond := Condition{Field: field, Operator: op, Value: value}
	if len(parts) == 4 {
		window, err := time.ParseDuration(parts[3])
		if err != nil || window <= 0 {
			return Condition{}, fmt.Errorf("%w: %q", ErrInvalidWindow, parts[3])
		}
		cond.TimeWindow = window
	}
	return cond, nil
}

func splitSymbolOperator(text string) []string {
	compact := strings.Join(strings.Fields(text), "")
	for _, op := range symbolOperators {
		idx := strings.Index(compact, op)
		if idx <= 0 {
			continue
		}
		return []string{compact[:idx], op, compact[idx+len(op):]}
	}
	return nil
}

type Rule struct {
	ID              uint
	OwnerID         uint
	Symbol          string
	Conditions      []Condition
	Logic           ConditionLogic
	Frequency       Frequency
	Enabled         bool
	SnoozedUntil    *time.Time
	CheckFrequency  time.Duration
	CooldownPeriod  time.Duration
	LastTriggeredAt *time.Time
	TriggerCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidRule)
	}
	if len(r.Conditions) == 0 {
		return ErrEmptyConditions
	}
	for i, cond := range r.Conditions {
		if err := cond.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i+1, err)
		}
	}
	if _, err := ParseLogic(string(r.Logic)); err != nil {
		return err
	}
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	if r.CheckFrequency < 0 || r.CooldownPeriod < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidRule)
	}
	return nil
}

func (r Rule) Evaluable(now time.Time) bool {
	if !r.Enabled {
		return false
	}
	return r.SnoozedUntil == nil || !now.Before(*r.SnoozedUntil)
}

func (r Rule) MaxWindow() time.Duration {
	var max time.Duration
	for _, cond := range r.Conditions {
		if cond.TimeWindow > max {
			max = cond.TimeWindow
		}
	}
	return max
}

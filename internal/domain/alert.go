package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TriggerType string

const (
	TriggerBreakout       TriggerType = "breakout"
	TriggerStopHit        TriggerType = "stop_hit"
	TriggerTargetHit      TriggerType = "target_hit"
	TriggerConditionMatch TriggerType = "condition_match"
)

type SourceKind string

const (
	SourceSubject SourceKind = "subject"
	SourceRule    SourceKind = "rule"
)

type AlertKey struct {
	SourceKind  SourceKind
	SourceID    uint
	TriggerType TriggerType
}

type ConditionResult struct {
	Condition string `json:"condition"`
	Met       bool   `json:"met"`
}

type AlertEvent struct {
	ID             uint
	OwnerID        uint
	SourceKind     SourceKind
	SourceID       uint
	Symbol         string
	TriggerType    TriggerType
	TriggerValue   decimal.Decimal
	TriggeredAt    time.Time
	Message        string
	ConditionsMet  []ConditionResult
	Acknowledged   bool
	AcknowledgedAt *time.Time
	Dismissed      bool
	CreatedAt      time.Time
}

func (e AlertEvent) Key() AlertKey {
	return AlertKey{SourceKind: e.SourceKind, SourceID: e.SourceID, TriggerType: e.TriggerType}
}

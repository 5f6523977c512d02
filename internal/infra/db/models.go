package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type userModel struct {
	ID             uint   `gorm:"primaryKey"`
	TelegramUserID int64  `gorm:"uniqueIndex;not null"`
	Username       string `gorm:""`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (userModel) TableName() string { return "users" }

type ruleModel struct {
	ID                    uint   `gorm:"primaryKey"`
	OwnerID               uint   `gorm:"index;not null"`
	Symbol                string `gorm:"index:idx_rules_symbol_enabled,priority:1;size:16;not null"`
	Logic                 string `gorm:"size:3;not null"`
	Frequency             string `gorm:"size:16;not null"`
	Enabled               bool   `gorm:"index:idx_rules_symbol_enabled,priority:2"`
	SnoozedUntil          *time.Time
	CheckFrequencySeconds int64 `gorm:"not null;default:0"`
	CooldownSeconds       int64 `gorm:"not null;default:0"`
	LastTriggeredAt       *time.Time
	TriggerCount          int                  `gorm:"not null;default:0"`
	Conditions            []ruleConditionModel `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             gorm.DeletedAt `gorm:"index"`
}

func (ruleModel) TableName() string { return "rules" }

type ruleConditionModel struct {
	ID                uint            `gorm:"primaryKey"`
	RuleID            uint            `gorm:"index;not null"`
	Position          int             `gorm:"not null"`
	Field             string          `gorm:"size:32;not null"`
	Operator          string          `gorm:"size:16;not null"`
	Value             decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	TimeWindowSeconds int64           `gorm:"not null;default:0"`
}

func (ruleConditionModel) TableName() string { return "rule_conditions" }

type subjectModel struct {
	ID            uint                `gorm:"primaryKey"`
	OwnerID       uint                `gorm:"index;not null"`
	Symbol        string              `gorm:"size:16;not null"`
	Status        string              `gorm:"index;size:16;not null"`
	TargetEntry   decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	TargetStop    decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	TargetPrice   decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	Frequency     string              `gorm:"size:16;not null"`
	LastAlertedAt *time.Time
	MutedUntil    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (subjectModel) TableName() string { return "watched_subjects" }

type alertEventModel struct {
	ID             uint            `gorm:"primaryKey"`
	OwnerID        uint            `gorm:"index;not null"`
	SourceKind     string          `gorm:"index:idx_alert_events_key,priority:1;size:16;not null"`
	SourceID       uint            `gorm:"index:idx_alert_events_key,priority:2;not null"`
	TriggerType    string          `gorm:"index:idx_alert_events_key,priority:3;size:32;not null"`
	Symbol         string          `gorm:"size:16;not null"`
	TriggerValue   decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	TriggeredAt    time.Time       `gorm:"not null"`
	Message        string          `gorm:"type:text;not null"`
	ConditionsMet  datatypes.JSON
	Acknowledged   bool
	AcknowledgedAt *time.Time
	Dismissed      bool
	CreatedAt      time.Time
}

func (alertEventModel) TableName() string { return "alert_events" }

type deliveryAttemptModel struct {
	ID            uint   `gorm:"primaryKey"`
	AlertEventID  uint   `gorm:"uniqueIndex:idx_delivery_event_channel,priority:1;not null"`
	Channel       string `gorm:"uniqueIndex:idx_delivery_event_channel,priority:2;size:32;not null"`
	Status        string `gorm:"index:idx_delivery_due,priority:1;size:16;not null"`
	Attempts      int    `gorm:"not null;default:0"`
	MaxAttempts   int    `gorm:"not null"`
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time `gorm:"index:idx_delivery_due,priority:2"`
	DeliveredAt   *time.Time
	FailedAt      *time.Time
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (deliveryAttemptModel) TableName() string { return "delivery_attempts" }

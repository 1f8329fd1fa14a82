package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// SettlementRun is one versioned computation of a supplier's monthly settlement.
type SettlementRun struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID      uuid.UUID                `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_settlement_runs_key,priority:1"`
	VerticalID      uuid.UUID                `gorm:"column:vertical_id;type:uuid;not null;uniqueIndex:ux_settlement_runs_key,priority:2"`
	UserTypeID      *uuid.UUID               `gorm:"column:user_type_id;type:uuid;uniqueIndex:ux_settlement_runs_key,priority:3"`
	Method          enums.DistributionMethod `gorm:"column:method;type:text;not null;uniqueIndex:ux_settlement_runs_key,priority:4"`
	Month           int                      `gorm:"column:month;not null;uniqueIndex:ux_settlement_runs_key,priority:5"`
	Year            int                      `gorm:"column:year;not null;uniqueIndex:ux_settlement_runs_key,priority:6"`
	Version         int                      `gorm:"column:version;not null;default:1;uniqueIndex:ux_settlement_runs_key,priority:7"`
	ProductTypeID   *uuid.UUID               `gorm:"column:product_type_id;type:uuid"`
	ProductID       *uuid.UUID               `gorm:"column:product_id;type:uuid"`
	Action          *enums.RewardAction      `gorm:"column:action;type:text"`
	Status          enums.SettlementStatus   `gorm:"column:status;type:text;not null;default:'PENDING'"`
	IsMissing       bool                     `gorm:"column:is_missing;not null;default:false"`
	PreviewLink     *string                  `gorm:"column:preview_link;type:text"`
	FailureReason   *string                  `gorm:"column:failure_reason;type:text"`
	CancelRequested bool                     `gorm:"column:cancel_requested;not null;default:false"`
	CancelledAt     *time.Time               `gorm:"column:cancelled_at"`
	LockVersion     int                      `gorm:"column:lock_version;not null;default:0"`
	StartedAt       *time.Time               `gorm:"column:started_at"`
	FinishedAt      *time.Time               `gorm:"column:finished_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (SettlementRun) TableName() string { return "settlement_runs" }

func (r *SettlementRun) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// BreakdownEntry is one entity's share of an entity-scoped breakdown.
type BreakdownEntry struct {
	EntityID uuid.UUID       `json:"entity_id"`
	Value    decimal.Decimal `json:"value"`
}

// SettlementBreakdown is the persisted form of a method breakdown. Exactly one of
// Value, Link or Entries is meaningful depending on Method.
type SettlementBreakdown struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	RunID      uuid.UUID                `gorm:"column:run_id;type:uuid;not null;uniqueIndex"`
	Method     enums.DistributionMethod `gorm:"column:method;type:text;not null"`
	Value      *decimal.Decimal         `gorm:"column:value;type:numeric(14,2)"`
	Link       *string                  `gorm:"column:link;type:text"`
	Incomplete bool                     `gorm:"column:incomplete;not null;default:false"`
	Entries    []BreakdownEntry         `gorm:"column:entries;type:jsonb;serializer:json"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementBreakdown) TableName() string { return "settlement_breakdowns" }

func (b *SettlementBreakdown) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	if b.Entries == nil {
		b.Entries = []BreakdownEntry{}
	}
	return nil
}

// SettlementLogRow is one user's line in a settlement log.
type SettlementLogRow struct {
	UserID      uuid.UUID       `json:"user_id"`
	Points      int64           `json:"points"`
	Value       decimal.Decimal `json:"value"`
	HeldValue   decimal.Decimal `json:"held_value"`
	Name        string          `json:"name"`
	District    string          `json:"district,omitempty"`
	Governorate string          `json:"governorate,omitempty"`
	Phone       string          `json:"phone,omitempty"`
}

// SettlementLog is the per-user ledger produced by a finished run.
type SettlementLog struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SettlementRunID uuid.UUID          `gorm:"column:settlement_run_id;type:uuid;not null;uniqueIndex"`
	VerticalID      uuid.UUID          `gorm:"column:vertical_id;type:uuid;not null"`
	SupplierID      uuid.UUID          `gorm:"column:supplier_id;type:uuid;not null"`
	Version         int                `gorm:"column:version;not null"`
	Rows            []SettlementLogRow `gorm:"column:rows;type:jsonb;serializer:json"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementLog) TableName() string { return "settlement_logs" }

func (l *SettlementLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	if l.Rows == nil {
		l.Rows = []SettlementLogRow{}
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/incentives-backend/pkg/db/types"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// RewardStream is a per-action payout attached to a rule.
type RewardStream struct {
	Action               enums.RewardAction `json:"action"`
	WheelValue           decimal.Decimal    `json:"wheel_value"`
	WalletValue          decimal.Decimal    `json:"wallet_value"`
	ActionFromUserTypeID *uuid.UUID         `json:"action_from_user_type_id,omitempty"`
}

// SegmentOverride replaces the rule payout for one population entity.
type SegmentOverride struct {
	EntityID uuid.UUID       `json:"entity_id"`
	Value    decimal.Decimal `json:"value"`
}

// IncentiveRule is a configured payout for a (vertical, supplier, user type, product type, product) scope.
// Nil scope columns match any value.
type IncentiveRule struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	VerticalID       *uuid.UUID        `gorm:"column:vertical_id;type:uuid"`
	SupplierID       *uuid.UUID        `gorm:"column:supplier_id;type:uuid"`
	UserTypeID       *uuid.UUID        `gorm:"column:user_type_id;type:uuid"`
	ProductTypeID    *uuid.UUID        `gorm:"column:product_type_id;type:uuid"`
	ProductID        *uuid.UUID        `gorm:"column:product_id;type:uuid"`
	ProfitMargin     decimal.Decimal   `gorm:"column:profit_margin;type:numeric(14,2);not null;default:0"`
	BaseAllowance    decimal.Decimal   `gorm:"column:base_allowance;type:numeric(14,2);not null;default:0"`
	BaseTotal        decimal.Decimal   `gorm:"column:base_total;type:numeric(14,2);not null;default:0"`
	RewardStreams    []RewardStream    `gorm:"column:reward_streams;type:jsonb;serializer:json"`
	SegmentOverrides []SegmentOverride `gorm:"column:segment_overrides;type:jsonb;serializer:json"`
	TargetUserIDs    dbtypes.UUIDArray `gorm:"column:target_user_ids"`
	IsActive         bool              `gorm:"column:is_active;not null"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (IncentiveRule) TableName() string { return "incentive_rules" }

func (r *IncentiveRule) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// BeforeSave keeps base_total in step with its components.
func (r *IncentiveRule) BeforeSave(*gorm.DB) error {
	r.BaseTotal = r.ProfitMargin.Add(r.BaseAllowance)
	if r.RewardStreams == nil {
		r.RewardStreams = []RewardStream{}
	}
	if r.SegmentOverrides == nil {
		r.SegmentOverrides = []SegmentOverride{}
	}
	return nil
}

// MinimumIncentive sets the minimum monthly points a user needs before earning anything.
type MinimumIncentive struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	VerticalID    *uuid.UUID `gorm:"column:vertical_id;type:uuid"`
	SupplierID    *uuid.UUID `gorm:"column:supplier_id;type:uuid"`
	UserTypeID    *uuid.UUID `gorm:"column:user_type_id;type:uuid"`
	ProductTypeID *uuid.UUID `gorm:"column:product_type_id;type:uuid"`
	ProductID     *uuid.UUID `gorm:"column:product_id;type:uuid"`
	MinimumPoints int64      `gorm:"column:minimum_points;not null;default:0"`
	IsActive      bool       `gorm:"column:is_active;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (MinimumIncentive) TableName() string { return "minimum_incentives" }

func (m *MinimumIncentive) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// HoldIncentive withholds a percentage of each user's payout.
type HoldIncentive struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VerticalID    *uuid.UUID      `gorm:"column:vertical_id;type:uuid"`
	SupplierID    *uuid.UUID      `gorm:"column:supplier_id;type:uuid"`
	UserTypeID    *uuid.UUID      `gorm:"column:user_type_id;type:uuid"`
	ProductTypeID *uuid.UUID      `gorm:"column:product_type_id;type:uuid"`
	ProductID     *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	HoldPercent   decimal.Decimal `gorm:"column:hold_percent;type:numeric(5,2);not null;default:0"`
	IsActive      bool            `gorm:"column:is_active;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (HoldIncentive) TableName() string { return "hold_incentives" }

func (h *HoldIncentive) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

// IncentiveHistory is an append-only audit row for a rule field change.
type IncentiveHistory struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RuleID    uuid.UUID `gorm:"column:rule_id;type:uuid;not null;index"`
	Field     string    `gorm:"column:field;type:text;not null"`
	OldValue  *string   `gorm:"column:old_value;type:text"`
	NewValue  *string   `gorm:"column:new_value;type:text"`
	Actor     *string   `gorm:"column:actor;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (IncentiveHistory) TableName() string { return "incentive_histories" }

func (h *IncentiveHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

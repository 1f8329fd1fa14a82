package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// SettlementFinishedEvent is emitted when a run reaches FINISHED.
type SettlementFinishedEvent struct {
	RunID       uuid.UUID                `json:"runId" validate:"required"`
	SupplierID  uuid.UUID                `json:"supplierId" validate:"required"`
	VerticalID  uuid.UUID                `json:"verticalId" validate:"required"`
	UserTypeID  *uuid.UUID               `json:"userTypeId,omitempty"`
	Method      enums.DistributionMethod `json:"method" validate:"distribution_method"`
	Month       int                      `json:"month" validate:"min=1,max=12"`
	Year        int                      `json:"year" validate:"min=2000"`
	Version     int                      `json:"version" validate:"min=1"`
	IsMissing   bool                     `json:"isMissing"`
	PreviewLink string                   `json:"previewLink,omitempty"`
	UserCount   int                      `json:"userCount" validate:"min=0"`
	TotalValue  decimal.Decimal          `json:"totalValue"`
	HeldValue   decimal.Decimal          `json:"heldValue"`
}

// SettlementCancelledEvent is emitted when a pending run is cancelled or a processing run
// has cancellation requested.
type SettlementCancelledEvent struct {
	RunID      uuid.UUID              `json:"runId" validate:"required"`
	SupplierID uuid.UUID              `json:"supplierId" validate:"required"`
	Status     enums.SettlementStatus `json:"status" validate:"required"`
	Requested  bool                   `json:"requested"`
}

// IncentiveRuleFieldChange is one audited field transition.
type IncentiveRuleFieldChange struct {
	Field    string  `json:"field" validate:"required"`
	OldValue *string `json:"oldValue,omitempty"`
	NewValue *string `json:"newValue,omitempty"`
}

// IncentiveRuleChangedEvent mirrors the history rows written for a rule update.
type IncentiveRuleChangedEvent struct {
	RuleID  uuid.UUID                  `json:"ruleId" validate:"required"`
	Changes []IncentiveRuleFieldChange `json:"changes" validate:"dive"`
}

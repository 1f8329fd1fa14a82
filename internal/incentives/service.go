package incentives

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/incentives-backend/pkg/db"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
	"github.com/angelmondragon/incentives-backend/pkg/outbox"
	"github.com/angelmondragon/incentives-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/incentives-backend/pkg/validate"
)

const ruleScopeConstraint = "ux_incentive_rules_scope"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service applies administrator edits to incentive rules. Every changed field is recorded
// as a history row and announced on the outbox in the same transaction.
type Service interface {
	UpdateRule(ctx context.Context, input UpdateRuleInput) (*models.IncentiveRule, error)
	History(ctx context.Context, ruleID uuid.UUID) ([]models.IncentiveHistory, error)
}

type RewardStreamInput struct {
	Action               string          `json:"action" validate:"required,reward_action"`
	WheelValue           decimal.Decimal `json:"wheelValue"`
	WalletValue          decimal.Decimal `json:"walletValue"`
	ActionFromUserTypeID *uuid.UUID      `json:"actionFromUserTypeId,omitempty"`
}

type SegmentOverrideInput struct {
	EntityID uuid.UUID       `json:"entityId" validate:"required"`
	Value    decimal.Decimal `json:"value"`
}

// UpdateRuleInput carries the fields to change. Nil fields are left untouched; an empty
// non-nil slice clears the list.
type UpdateRuleInput struct {
	RuleID           uuid.UUID              `json:"ruleId" validate:"required"`
	Actor            string                 `json:"actor" validate:"required,max=128"`
	ProfitMargin     *decimal.Decimal       `json:"profitMargin,omitempty"`
	BaseAllowance    *decimal.Decimal       `json:"baseAllowance,omitempty"`
	RewardStreams    []RewardStreamInput    `json:"rewardStreams,omitempty" validate:"omitempty,dive"`
	SegmentOverrides []SegmentOverrideInput `json:"segmentOverrides,omitempty" validate:"omitempty,dive"`
	TargetUserIDs    []uuid.UUID            `json:"targetUserIds,omitempty"`
	IsActive         *bool                  `json:"isActive,omitempty"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the rule update path.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("incentives repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

func (s *service) UpdateRule(ctx context.Context, input UpdateRuleInput) (*models.IncentiveRule, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var updated *models.IncentiveRule
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rule, err := repo.FindRule(ctx, input.RuleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "incentive rule not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load incentive rule")
		}

		changes := applyUpdate(rule, input)
		updated = rule
		if len(changes) == 0 {
			return nil
		}

		if err := repo.SaveRule(ctx, rule); err != nil {
			if pkgdb.IsUniqueViolation(err, ruleScopeConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another active rule has the same scope")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save incentive rule")
		}

		actor := input.Actor
		history := make([]models.IncentiveHistory, 0, len(changes))
		for _, c := range changes {
			history = append(history, models.IncentiveHistory{
				RuleID:   rule.ID,
				Field:    c.Field,
				OldValue: c.OldValue,
				NewValue: c.NewValue,
				Actor:    &actor,
			})
		}
		if err := repo.CreateHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write incentive history")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventIncentiveRuleChanged,
			AggregateType: enums.AggregateIncentiveRule,
			AggregateID:   rule.ID,
			Actor:         &outbox.ActorRef{ID: actor, Kind: outbox.ActorKindOperator},
			Data:          payloads.IncentiveRuleChangedEvent{RuleID: rule.ID, Changes: changes},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit incentive rule event")
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"rule_id": rule.ID.String(),
				"changes": len(changes),
			})
			s.logg.Info(logCtx, "incentive rule updated")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) History(ctx context.Context, ruleID uuid.UUID) ([]models.IncentiveHistory, error) {
	if ruleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule id required")
	}
	rows, err := s.repo.ListHistory(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list incentive history")
	}
	return rows, nil
}

func validateUpdate(input UpdateRuleInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}

	details := map[string]string{}
	if input.ProfitMargin != nil && input.ProfitMargin.IsNegative() {
		details["profitMargin"] = "must not be negative"
	}
	if input.BaseAllowance != nil && input.BaseAllowance.IsNegative() {
		details["baseAllowance"] = "must not be negative"
	}
	seenActions := map[string]bool{}
	for _, stream := range input.RewardStreams {
		if stream.WheelValue.IsNegative() || stream.WalletValue.IsNegative() {
			details["rewardStreams"] = "values must not be negative"
		}
		if seenActions[stream.Action] {
			details["rewardStreams"] = "duplicate action " + stream.Action
		}
		seenActions[stream.Action] = true
	}
	seenEntities := map[uuid.UUID]bool{}
	for _, o := range input.SegmentOverrides {
		if o.Value.IsNegative() {
			details["segmentOverrides"] = "values must not be negative"
		}
		if seenEntities[o.EntityID] {
			details["segmentOverrides"] = "duplicate entity " + o.EntityID.String()
		}
		seenEntities[o.EntityID] = true
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

// applyUpdate mutates rule in place and returns one change per field that actually moved.
func applyUpdate(rule *models.IncentiveRule, input UpdateRuleInput) []payloads.IncentiveRuleFieldChange {
	var changes []payloads.IncentiveRuleFieldChange
	record := func(field, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		o, n := oldValue, newValue
		changes = append(changes, payloads.IncentiveRuleFieldChange{Field: field, OldValue: &o, NewValue: &n})
	}

	oldTotal := rule.ProfitMargin.Add(rule.BaseAllowance)
	if input.ProfitMargin != nil {
		record("profit_margin", rule.ProfitMargin.String(), input.ProfitMargin.String())
		rule.ProfitMargin = *input.ProfitMargin
	}
	if input.BaseAllowance != nil {
		record("base_allowance", rule.BaseAllowance.String(), input.BaseAllowance.String())
		rule.BaseAllowance = *input.BaseAllowance
	}
	record("base_total", oldTotal.String(), rule.ProfitMargin.Add(rule.BaseAllowance).String())

	if input.RewardStreams != nil {
		streams := make([]models.RewardStream, 0, len(input.RewardStreams))
		for _, s := range input.RewardStreams {
			streams = append(streams, models.RewardStream{
				Action:               enums.RewardAction(s.Action),
				WheelValue:           s.WheelValue,
				WalletValue:          s.WalletValue,
				ActionFromUserTypeID: s.ActionFromUserTypeID,
			})
		}
		record("reward_streams", marshalString(rule.RewardStreams), marshalString(streams))
		rule.RewardStreams = streams
	}
	if input.SegmentOverrides != nil {
		overrides := make([]models.SegmentOverride, 0, len(input.SegmentOverrides))
		for _, o := range input.SegmentOverrides {
			overrides = append(overrides, models.SegmentOverride{EntityID: o.EntityID, Value: o.Value})
		}
		record("segment_overrides", marshalString(rule.SegmentOverrides), marshalString(overrides))
		rule.SegmentOverrides = overrides
	}
	if input.TargetUserIDs != nil {
		targets := append([]uuid.UUID{}, input.TargetUserIDs...)
		record("target_user_ids", marshalString([]uuid.UUID(rule.TargetUserIDs)), marshalString(targets))
		rule.TargetUserIDs = targets
	}
	if input.IsActive != nil {
		record("is_active", strconv.FormatBool(rule.IsActive), strconv.FormatBool(*input.IsActive))
		rule.IsActive = *input.IsActive
	}
	return changes
}

// marshalString renders v as JSON; nil and empty slices both render as "[]".
func marshalString(v any) string {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return "[]"
	}
	return string(raw)
}

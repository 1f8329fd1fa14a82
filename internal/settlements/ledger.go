package settlements

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/incentives-backend/internal/aggregation"
	"github.com/angelmondragon/incentives-backend/internal/incentives"
	"github.com/angelmondragon/incentives-backend/internal/population"
	"github.com/angelmondragon/incentives-backend/internal/referencedata"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// payoutConfig is the resolved configuration a run pays out with.
type payoutConfig struct {
	rule    models.IncentiveRule
	action  *enums.RewardAction
	minimum *models.MinimumIncentive
	hold    *models.HoldIncentive
}

// ledgerTotals summarizes a built log for events and metrics.
type ledgerTotals struct {
	users int
	value decimal.Decimal
	held  decimal.Decimal
}

// buildRows computes one log row per eligible user. Users below the minimum points earn
// nothing; the hold share is withheld from value and reported as held_value.
func buildRows(cfg payoutConfig, breakdown aggregation.Breakdown, users []population.User, districts, governorates map[uuid.UUID]string) ([]models.SettlementLogRow, ledgerTotals) {
	totals := ledgerTotals{value: decimal.Zero, held: decimal.Zero}
	rows := make([]models.SettlementLogRow, 0, len(users))
	flat := incentives.PayoutTotal(cfg.rule, cfg.action)
	entity, _ := breakdown.(aggregation.EntityMethod)

	for _, user := range users {
		if len(cfg.rule.TargetUserIDs) > 0 && !cfg.rule.TargetUserIDs.Contains(user.ID) {
			continue
		}

		value := flat
		if breakdown.Method().IsEntityScoped() {
			value = decimal.Zero
			if id := entityOf(breakdown.Method(), user); id != nil {
				if v, ok := entity.ValueFor(*id); ok {
					value = v
				}
			}
		}
		if cfg.minimum != nil && user.Points < cfg.minimum.MinimumPoints {
			value = decimal.Zero
		}

		held := decimal.Zero
		if cfg.hold != nil && cfg.hold.HoldPercent.IsPositive() {
			held = value.Mul(cfg.hold.HoldPercent).Div(hundred).Round(2)
			value = value.Sub(held)
		}

		row := models.SettlementLogRow{
			UserID:    user.ID,
			Points:    user.Points,
			Value:     value,
			HeldValue: held,
			Name:      user.Name,
			Phone:     user.Phone,
		}
		if user.DistrictID != nil {
			row.District = districts[*user.DistrictID]
		}
		if user.GovernorateID != nil {
			row.Governorate = governorates[*user.GovernorateID]
		}
		rows = append(rows, row)

		totals.users++
		totals.value = totals.value.Add(value)
		totals.held = totals.held.Add(held)
	}
	return rows, totals
}

func entityOf(method enums.DistributionMethod, user population.User) *uuid.UUID {
	switch method {
	case enums.DistributionDistrict:
		return user.DistrictID
	case enums.DistributionGovernorate:
		return user.GovernorateID
	case enums.DistributionSegment:
		return user.SegmentID
	}
	return nil
}

// lookupNames resolves the district and governorate names referenced by users.
func lookupNames(ctx context.Context, refdata referencedata.Repository, users []population.User) (map[uuid.UUID]string, map[uuid.UUID]string, error) {
	districtIDs := make([]uuid.UUID, 0)
	governorateIDs := make([]uuid.UUID, 0)
	seenDistricts := map[uuid.UUID]bool{}
	seenGovernorates := map[uuid.UUID]bool{}
	for _, u := range users {
		if u.DistrictID != nil && !seenDistricts[*u.DistrictID] {
			seenDistricts[*u.DistrictID] = true
			districtIDs = append(districtIDs, *u.DistrictID)
		}
		if u.GovernorateID != nil && !seenGovernorates[*u.GovernorateID] {
			seenGovernorates[*u.GovernorateID] = true
			governorateIDs = append(governorateIDs, *u.GovernorateID)
		}
	}
	districts, err := refdata.Names(ctx, referencedata.KindDistrict, districtIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load district names")
	}
	governorates, err := refdata.Names(ctx, referencedata.KindGovernorate, governorateIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load governorate names")
	}
	return districts, governorates, nil
}

package incentives

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// PayoutTotal is the rule's base total plus the wallet value of every reward stream for
// action. A nil action yields the base total.
func PayoutTotal(rule models.IncentiveRule, action *enums.RewardAction) decimal.Decimal {
	total := rule.ProfitMargin.Add(rule.BaseAllowance)
	if action == nil {
		return total
	}
	for _, stream := range rule.RewardStreams {
		if stream.Action == *action {
			total = total.Add(stream.WalletValue)
		}
	}
	return total
}

// OverrideFor returns the segment override for entityID, if any.
func OverrideFor(rule models.IncentiveRule, entityID uuid.UUID) (decimal.Decimal, bool) {
	for _, o := range rule.SegmentOverrides {
		if o.EntityID == entityID {
			return o.Value, true
		}
	}
	return decimal.Zero, false
}

func hasStream(rule models.IncentiveRule, action enums.RewardAction) bool {
	for _, stream := range rule.RewardStreams {
		if stream.Action == action {
			return true
		}
	}
	return false
}

// payoutSignature renders everything a rule pays out, independent of slice order, so two
// rules can be compared for conflicts.
func payoutSignature(rule models.IncentiveRule) string {
	streams := make([]string, 0, len(rule.RewardStreams))
	for _, s := range rule.RewardStreams {
		from := ""
		if s.ActionFromUserTypeID != nil {
			from = s.ActionFromUserTypeID.String()
		}
		streams = append(streams, fmt.Sprintf("%s/%s/%s/%s", s.Action, s.WheelValue.String(), s.WalletValue.String(), from))
	}
	sort.Strings(streams)

	overrides := make([]string, 0, len(rule.SegmentOverrides))
	for _, o := range rule.SegmentOverrides {
		overrides = append(overrides, o.EntityID.String()+"="+o.Value.String())
	}
	sort.Strings(overrides)

	targets := make([]string, 0, len(rule.TargetUserIDs))
	for _, id := range rule.TargetUserIDs {
		targets = append(targets, id.String())
	}
	sort.Strings(targets)

	return strings.Join([]string{
		rule.ProfitMargin.Add(rule.BaseAllowance).String(),
		strings.Join(streams, ","),
		strings.Join(overrides, ","),
		strings.Join(targets, ","),
	}, "|")
}

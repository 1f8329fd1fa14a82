package aggregation

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/incentives-backend/internal/incentives"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
)

// Population is what a method aggregates over: an export link for USERS, an ordered list
// of entity ids for GOVERNORATE, DISTRICT and SEGMENT. Other methods ignore it.
type Population struct {
	Link     string
	Entities []uuid.UUID
}

// Aggregate computes the breakdown of rule for method. It is pure; an empty entity
// population yields an EntityMethod with no entries.
func Aggregate(method enums.DistributionMethod, rule models.IncentiveRule, action *enums.RewardAction, pop Population) (Breakdown, error) {
	switch method {
	case enums.DistributionUsers:
		return UserMethod{Link: pop.Link}, nil
	case enums.DistributionRegion:
		return RegionMethod{}, nil
	case enums.DistributionApplyAll:
		return AllMethod{Value: incentives.PayoutTotal(rule, action)}, nil
	case enums.DistributionGovernorate, enums.DistributionDistrict, enums.DistributionSegment:
		return aggregateEntities(method, rule, action, pop.Entities)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedMethod, "unsupported distribution method").
			WithDetails(map[string]string{"method": string(method)})
	}
}

func aggregateEntities(method enums.DistributionMethod, rule models.IncentiveRule, action *enums.RewardAction, entities []uuid.UUID) (Breakdown, error) {
	total := incentives.PayoutTotal(rule, action)
	seen := make(map[uuid.UUID]struct{}, len(entities))
	entries := make([]Entry, 0, len(entities))
	for _, id := range entities {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate entity in population").
				WithDetails(map[string]string{"entity_id": id.String()})
		}
		seen[id] = struct{}{}

		value := total
		if override, ok := incentives.OverrideFor(rule, id); ok {
			value = override
		}
		entries = append(entries, Entry{EntityID: id, Value: value})
	}
	return EntityMethod{Kind: method, Entries: entries}, nil
}

package aggregation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// Breakdown is the result of aggregating one rule over one population. The concrete type
// is fixed by the distribution method.
type Breakdown interface {
	Method() enums.DistributionMethod
	// Incomplete reports that required upstream data was absent.
	Incomplete() bool
	isBreakdown()
}

// AllMethod applies a single value to everyone.
type AllMethod struct {
	Value decimal.Decimal
}

// UserMethod points at an exported user list; per-user values are computed by the log builder.
type UserMethod struct {
	Link string
}

// RegionMethod carries no payload: region granularity is vertical-wide.
type RegionMethod struct{}

// Entry is one entity's value.
type Entry struct {
	EntityID uuid.UUID
	Value    decimal.Decimal
}

// EntityMethod lists one value per governorate, district or segment in population order.
type EntityMethod struct {
	Kind    enums.DistributionMethod
	Entries []Entry
}

func (AllMethod) Method() enums.DistributionMethod    { return enums.DistributionApplyAll }
func (UserMethod) Method() enums.DistributionMethod   { return enums.DistributionUsers }
func (RegionMethod) Method() enums.DistributionMethod { return enums.DistributionRegion }
func (b EntityMethod) Method() enums.DistributionMethod {
	return b.Kind
}

func (AllMethod) Incomplete() bool    { return false }
func (b UserMethod) Incomplete() bool { return b.Link == "" }
func (RegionMethod) Incomplete() bool { return false }
func (EntityMethod) Incomplete() bool { return false }

func (AllMethod) isBreakdown()    {}
func (UserMethod) isBreakdown()   {}
func (RegionMethod) isBreakdown() {}
func (EntityMethod) isBreakdown() {}

// ValueFor returns the entry for entityID.
func (b EntityMethod) ValueFor(entityID uuid.UUID) (decimal.Decimal, bool) {
	for _, e := range b.Entries {
		if e.EntityID == entityID {
			return e.Value, true
		}
	}
	return decimal.Zero, false
}

// ToModel renders b as the settlement_breakdowns row for runID.
func ToModel(runID uuid.UUID, b Breakdown) models.SettlementBreakdown {
	row := models.SettlementBreakdown{
		RunID:      runID,
		Method:     b.Method(),
		Incomplete: b.Incomplete(),
	}
	switch v := b.(type) {
	case AllMethod:
		value := v.Value
		row.Value = &value
	case UserMethod:
		if v.Link != "" {
			link := v.Link
			row.Link = &link
		}
	case EntityMethod:
		row.Entries = make([]models.BreakdownEntry, 0, len(v.Entries))
		for _, e := range v.Entries {
			row.Entries = append(row.Entries, models.BreakdownEntry{EntityID: e.EntityID, Value: e.Value})
		}
	}
	return row
}

// FromModel is the inverse of ToModel.
func FromModel(row models.SettlementBreakdown) Breakdown {
	switch {
	case row.Method == enums.DistributionApplyAll:
		b := AllMethod{}
		if row.Value != nil {
			b.Value = *row.Value
		}
		return b
	case row.Method == enums.DistributionUsers:
		b := UserMethod{}
		if row.Link != nil {
			b.Link = *row.Link
		}
		return b
	case row.Method == enums.DistributionRegion:
		return RegionMethod{}
	default:
		b := EntityMethod{Kind: row.Method, Entries: make([]Entry, 0, len(row.Entries))}
		for _, e := range row.Entries {
			b.Entries = append(b.Entries, Entry{EntityID: e.EntityID, Value: e.Value})
		}
		return b
	}
}

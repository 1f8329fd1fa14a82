package settlements

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/incentives-backend/internal/aggregation"
	"github.com/angelmondragon/incentives-backend/internal/population"
	"github.com/angelmondragon/incentives-backend/internal/referencedata"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/incentives-backend/pkg/db/types"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

func flatRule(total int64) models.IncentiveRule {
	return models.IncentiveRule{ProfitMargin: decimal.NewFromInt(total)}
}

func TestBuildRowsFlatValue(t *testing.T) {
	district := uuid.New()
	users := []population.User{
		{ID: uuid.New(), Points: 10, Name: "A", DistrictID: &district},
		{ID: uuid.New(), Points: 20, Name: "B"},
	}
	cfg := payoutConfig{rule: flatRule(50)}
	breakdown := aggregation.AllMethod{Value: decimal.NewFromInt(50)}

	rows, totals := buildRows(cfg, breakdown, users, map[uuid.UUID]string{district: "Dokki"}, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "Dokki", rows[0].District)
	assert.Empty(t, rows[1].District)
	assert.True(t, rows[0].Value.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2, totals.users)
	assert.True(t, totals.value.Equal(decimal.NewFromInt(100)))
	assert.True(t, totals.held.IsZero())
}

func TestBuildRowsEntityValues(t *testing.T) {
	d1, d2, d3 := uuid.New(), uuid.New(), uuid.New()
	breakdown := aggregation.EntityMethod{
		Kind: enums.DistributionDistrict,
		Entries: []aggregation.Entry{
			{EntityID: d1, Value: decimal.NewFromInt(100)},
			{EntityID: d2, Value: decimal.NewFromInt(40)},
		},
	}
	users := []population.User{
		{ID: uuid.New(), DistrictID: &d1},
		{ID: uuid.New(), DistrictID: &d2},
		{ID: uuid.New(), DistrictID: &d3},
		{ID: uuid.New()},
	}

	rows, totals := buildRows(payoutConfig{rule: flatRule(100)}, breakdown, users, nil, nil)
	require.Len(t, rows, 4)
	assert.True(t, rows[0].Value.Equal(decimal.NewFromInt(100)))
	assert.True(t, rows[1].Value.Equal(decimal.NewFromInt(40)))
	assert.True(t, rows[2].Value.IsZero())
	assert.True(t, rows[3].Value.IsZero())
	assert.True(t, totals.value.Equal(decimal.NewFromInt(140)))
}

func TestBuildRowsMinimumAndHold(t *testing.T) {
	users := []population.User{
		{ID: uuid.New(), Points: 5},
		{ID: uuid.New(), Points: 50},
	}
	cfg := payoutConfig{
		rule:    flatRule(99),
		minimum: &models.MinimumIncentive{MinimumPoints: 10},
		hold:    &models.HoldIncentive{HoldPercent: decimal.NewFromInt(15)},
	}

	rows, totals := buildRows(cfg, aggregation.AllMethod{}, users, nil, nil)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Value.IsZero())
	assert.True(t, rows[0].HeldValue.IsZero())
	assert.Equal(t, "84.15", rows[1].Value.StringFixed(2))
	assert.Equal(t, "14.85", rows[1].HeldValue.StringFixed(2))
	assert.Equal(t, "14.85", totals.held.StringFixed(2))
}

func TestBuildRowsTargetUsers(t *testing.T) {
	included := uuid.New()
	cfg := payoutConfig{rule: flatRule(10)}
	cfg.rule.TargetUserIDs = dbtypes.UUIDArray{included}
	users := []population.User{{ID: uuid.New()}, {ID: included}}

	rows, totals := buildRows(cfg, aggregation.AllMethod{}, users, nil, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, included, rows[0].UserID)
	assert.Equal(t, 1, totals.users)
}

func TestBuildRowsActionStreams(t *testing.T) {
	action := enums.RewardActionPurchase
	cfg := payoutConfig{rule: flatRule(10), action: &action}
	cfg.rule.RewardStreams = []models.RewardStream{
		{Action: enums.RewardActionPurchase, WalletValue: decimal.NewFromInt(5)},
		{Action: enums.RewardActionSells, WalletValue: decimal.NewFromInt(7)},
	}

	rows, _ := buildRows(cfg, aggregation.AllMethod{}, []population.User{{ID: uuid.New()}}, nil, nil)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Value.Equal(decimal.NewFromInt(15)))
}

type namesByKind struct {
	requested map[referencedata.Kind][]uuid.UUID
}

func (n *namesByKind) ListEntities(context.Context, referencedata.Kind) ([]referencedata.Entity, error) {
	return nil, nil
}

func (n *namesByKind) Names(_ context.Context, kind referencedata.Kind, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if n.requested == nil {
		n.requested = map[referencedata.Kind][]uuid.UUID{}
	}
	n.requested[kind] = append(n.requested[kind], ids...)
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		out[id] = string(kind)
	}
	return out, nil
}

func (n *namesByKind) ActiveSuppliers(context.Context) ([]models.Supplier, error) {
	return nil, nil
}

func (n *namesByKind) FindSupplier(context.Context, uuid.UUID) (*models.Supplier, error) {
	return nil, nil
}

func TestLookupNamesDedupesEachKindSeparately(t *testing.T) {
	shared, other := uuid.New(), uuid.New()
	users := []population.User{
		{ID: uuid.New(), DistrictID: &shared, GovernorateID: &other},
		{ID: uuid.New(), DistrictID: &other, GovernorateID: &shared},
		{ID: uuid.New(), DistrictID: &shared, GovernorateID: &shared},
	}
	refdata := &namesByKind{}

	districts, governorates, err := lookupNames(context.Background(), refdata, users)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{shared, other}, refdata.requested[referencedata.KindDistrict])
	assert.ElementsMatch(t, []uuid.UUID{other, shared}, refdata.requested[referencedata.KindGovernorate])
	assert.Len(t, districts, 2)
	assert.Len(t, governorates, 2)
}

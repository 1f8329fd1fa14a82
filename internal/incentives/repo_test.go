package incentives

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:incentives_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.IncentiveRule{},
		&models.MinimumIncentive{},
		&models.HoldIncentive{},
		&models.IncentiveHistory{},
		&models.OutboxEvent{},
	))
	return db
}

func TestCandidateRulesMatchesWildcardsAndSkipsInactive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v, s, otherSupplier := uuid.New(), uuid.New(), uuid.New()

	wildcard := models.IncentiveRule{ProfitMargin: decimal.NewFromInt(1), IsActive: true}
	vertical := models.IncentiveRule{VerticalID: ptr(v), ProfitMargin: decimal.NewFromInt(2), IsActive: true}
	supplier := models.IncentiveRule{VerticalID: ptr(v), SupplierID: ptr(s), ProfitMargin: decimal.NewFromInt(3), IsActive: true}
	other := models.IncentiveRule{VerticalID: ptr(v), SupplierID: ptr(otherSupplier), ProfitMargin: decimal.NewFromInt(4), IsActive: true}
	inactive := models.IncentiveRule{VerticalID: ptr(v), SupplierID: ptr(s), ProfitMargin: decimal.NewFromInt(5)}
	for _, r := range []*models.IncentiveRule{&wildcard, &vertical, &supplier, &other, &inactive} {
		require.NoError(t, db.Create(r).Error)
	}

	repo := NewRepository(db)
	rows, err := repo.CandidateRules(ctx, Scope{VerticalID: ptr(v), SupplierID: ptr(s)})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{wildcard.ID, vertical.ID, supplier.ID}, ids)

	// unspecified request fields do not filter
	rows, err = repo.CandidateRules(ctx, Scope{VerticalID: ptr(v)})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestSaveRuleComputesBaseTotal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := models.IncentiveRule{ProfitMargin: decimal.NewFromInt(60), BaseAllowance: decimal.NewFromInt(40), IsActive: true}
	require.NoError(t, db.Create(&r).Error)

	repo := NewRepository(db)
	loaded, err := repo.FindRule(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, loaded.BaseTotal.Equal(decimal.NewFromInt(100)))

	loaded.BaseAllowance = decimal.NewFromInt(10)
	require.NoError(t, repo.SaveRule(ctx, loaded))
	reloaded, err := repo.FindRule(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.BaseTotal.Equal(decimal.NewFromInt(70)))
}

func TestResolverUsesPersistedCandidates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v, s, ut := uuid.New(), uuid.New(), uuid.New()

	rules := []models.IncentiveRule{
		{VerticalID: ptr(v), SupplierID: ptr(s), UserTypeID: ptr(ut), ProductTypeID: ptr(uuid.New()), ProfitMargin: decimal.NewFromInt(100), IsActive: true},
		{VerticalID: ptr(v), SupplierID: ptr(s), UserTypeID: ptr(ut), ProductTypeID: ptr(uuid.New()), ProfitMargin: decimal.NewFromInt(80), IsActive: true},
	}
	require.NoError(t, db.Create(&rules).Error)
	minimums := []models.MinimumIncentive{
		{VerticalID: ptr(v), MinimumPoints: 5, IsActive: true, CreatedAt: time.Now()},
	}
	require.NoError(t, db.Create(&minimums).Error)

	resolver, err := NewResolver(NewRepository(db))
	require.NoError(t, err)

	scope := Scope{VerticalID: ptr(v), SupplierID: ptr(s), UserTypeID: ptr(ut)}
	_, err = resolver.Rule(ctx, scope)
	require.Error(t, err)

	minimum, err := resolver.Minimum(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5), minimum.MinimumPoints)

	_, err = resolver.Hold(ctx, scope)
	require.Error(t, err)
}

package referencedata

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:refdata_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.District{}, &models.Segment{}, &models.Governorate{}, &models.Supplier{}))
	return db
}

func TestListEntitiesOrdersByPosition(t *testing.T) {
	db := newTestDB(t)
	gov := uuid.New()
	d1 := models.District{ID: uuid.New(), GovernorateID: gov, Name: "Maadi", Position: 2}
	d2 := models.District{ID: uuid.New(), GovernorateID: gov, Name: "Zamalek", Position: 1}
	d3 := models.District{ID: uuid.New(), GovernorateID: gov, Name: "Agouza", Position: 2}
	require.NoError(t, db.Create(&[]models.District{d1, d2, d3}).Error)

	repo := NewRepository(db)
	rows, err := repo.ListEntities(context.Background(), KindDistrict)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []uuid.UUID{d2.ID, d3.ID, d1.ID}, []uuid.UUID{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, "Zamalek", rows[0].Name)
}

func TestListEntitiesUnknownKind(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	_, err := repo.ListEntities(context.Background(), Kind("region"))
	require.Error(t, err)
}

func TestNames(t *testing.T) {
	db := newTestDB(t)
	seg := models.Segment{ID: uuid.New(), Name: "Gold"}
	require.NoError(t, db.Create(&seg).Error)

	repo := NewRepository(db)
	names, err := repo.Names(context.Background(), KindSegment, []uuid.UUID{seg.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{seg.ID: "Gold"}, names)

	empty, err := repo.Names(context.Background(), KindSegment, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestActiveSuppliers(t *testing.T) {
	db := newTestDB(t)
	vertical := uuid.New()
	active := models.Supplier{ID: uuid.New(), VerticalID: vertical, Name: "Acme", IsActive: true}
	inactive := models.Supplier{ID: uuid.New(), VerticalID: vertical, Name: "Dormant", IsActive: false}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&inactive).Error)

	repo := NewRepository(db)
	suppliers, err := repo.ActiveSuppliers(context.Background())
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, active.ID, suppliers[0].ID)

	found, err := repo.FindSupplier(context.Background(), inactive.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dormant", found.Name)

	_, err = repo.FindSupplier(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

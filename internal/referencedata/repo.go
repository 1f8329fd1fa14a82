package referencedata

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
)

// Kind names a reference table that can serve as a settlement population.
type Kind string

const (
	KindGovernorate Kind = "governorate"
	KindDistrict    Kind = "district"
	KindSegment     Kind = "segment"
)

// Entity is the minimal {id, name} projection of a reference row.
type Entity struct {
	ID   uuid.UUID
	Name string
}

// Repository is a read-only view over reference tables.
type Repository interface {
	ListEntities(ctx context.Context, kind Kind) ([]Entity, error)
	Names(ctx context.Context, kind Kind, ids []uuid.UUID) (map[uuid.UUID]string, error)
	ActiveSuppliers(ctx context.Context) ([]models.Supplier, error)
	FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a reference data repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindGovernorate:
		return models.Governorate{}.TableName(), nil
	case KindDistrict:
		return models.District{}.TableName(), nil
	case KindSegment:
		return models.Segment{}.TableName(), nil
	default:
		return "", fmt.Errorf("unknown reference kind %q", kind)
	}
}

// ListEntities returns every row of kind in display order (position, then name).
func (r *repositoryImpl) ListEntities(ctx context.Context, kind Kind) ([]Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var rows []Entity
	err = r.db.WithContext(ctx).
		Table(table).
		Select("id", "name").
		Order("position ASC, name ASC, id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repositoryImpl) Names(ctx context.Context, kind Kind, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var rows []Entity
	if err := r.db.WithContext(ctx).
		Table(table).
		Select("id", "name").
		Where("id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Name
	}
	return out, nil
}

func (r *repositoryImpl) ActiveSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var suppliers []models.Supplier
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC, id ASC").
		Find(&suppliers).Error
	return suppliers, err
}

func (r *repositoryImpl) FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

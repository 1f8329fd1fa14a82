package incentives

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
)

// Repository is the read side of incentive configuration plus the rule write path used by
// administrators.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CandidateRules(ctx context.Context, scope Scope) ([]models.IncentiveRule, error)
	CandidateMinimums(ctx context.Context, scope Scope) ([]models.MinimumIncentive, error)
	CandidateHolds(ctx context.Context, scope Scope) ([]models.HoldIncentive, error)
	FindRule(ctx context.Context, id uuid.UUID) (*models.IncentiveRule, error)
	SaveRule(ctx context.Context, rule *models.IncentiveRule) error
	CreateHistory(ctx context.Context, rows []models.IncentiveHistory) error
	ListHistory(ctx context.Context, ruleID uuid.UUID) ([]models.IncentiveHistory, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an incentive configuration repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// scoped narrows query to active rows whose scope columns are compatible with scope: each
// specified request field matches a null column or an equal one.
func scoped(query *gorm.DB, scope Scope) *gorm.DB {
	columns := []struct {
		name  string
		value *uuid.UUID
	}{
		{"vertical_id", scope.VerticalID},
		{"supplier_id", scope.SupplierID},
		{"user_type_id", scope.UserTypeID},
		{"product_type_id", scope.ProductTypeID},
		{"product_id", scope.ProductID},
	}
	for _, col := range columns {
		if col.value == nil {
			continue
		}
		query = query.Where("("+col.name+" IS NULL OR "+col.name+" = ?)", *col.value)
	}
	return query.Where("is_active = ?", true).Order("created_at ASC, id ASC")
}

func (r *repositoryImpl) CandidateRules(ctx context.Context, scope Scope) ([]models.IncentiveRule, error) {
	var rows []models.IncentiveRule
	err := scoped(r.db.WithContext(ctx).Model(&models.IncentiveRule{}), scope).Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) CandidateMinimums(ctx context.Context, scope Scope) ([]models.MinimumIncentive, error) {
	var rows []models.MinimumIncentive
	err := scoped(r.db.WithContext(ctx).Model(&models.MinimumIncentive{}), scope).Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) CandidateHolds(ctx context.Context, scope Scope) ([]models.HoldIncentive, error) {
	var rows []models.HoldIncentive
	err := scoped(r.db.WithContext(ctx).Model(&models.HoldIncentive{}), scope).Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) FindRule(ctx context.Context, id uuid.UUID) (*models.IncentiveRule, error) {
	var rule models.IncentiveRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repositoryImpl) SaveRule(ctx context.Context, rule *models.IncentiveRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *repositoryImpl) CreateHistory(ctx context.Context, rows []models.IncentiveHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repositoryImpl) ListHistory(ctx context.Context, ruleID uuid.UUID) ([]models.IncentiveHistory, error) {
	var rows []models.IncentiveHistory
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("created_at ASC, field ASC").
		Find(&rows).Error
	return rows, err
}

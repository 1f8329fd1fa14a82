package settlements

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// Repository persists settlement runs and their outputs. Status changes go through
// CompareAndSwap only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LatestRun(ctx context.Context, key RunKey) (*models.SettlementRun, error)
	FindRun(ctx context.Context, id uuid.UUID) (*models.SettlementRun, error)
	CreateRun(ctx context.Context, run *models.SettlementRun) error
	CompareAndSwap(ctx context.Context, run *models.SettlementRun, to enums.SettlementStatus, updates map[string]any) (bool, error)
	UpdateLocked(ctx context.Context, run *models.SettlementRun, updates map[string]any) (bool, error)
	RecordFailure(ctx context.Context, run *models.SettlementRun, reason string) (bool, error)
	ReplaceBreakdown(ctx context.Context, row *models.SettlementBreakdown) error
	FindBreakdown(ctx context.Context, runID uuid.UUID) (*models.SettlementBreakdown, error)
	CreateLog(ctx context.Context, log *models.SettlementLog) error
	FindLog(ctx context.Context, runID uuid.UUID) (*models.SettlementLog, error)
	ListStalled(ctx context.Context, updatedBefore time.Time) ([]models.SettlementRun, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a settlements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// LatestRun returns the highest version for key, or nil when the period was never scheduled.
func (r *repositoryImpl) LatestRun(ctx context.Context, key RunKey) (*models.SettlementRun, error) {
	query := r.db.WithContext(ctx).
		Where("supplier_id = ? AND vertical_id = ?", key.SupplierID, key.VerticalID).
		Where("method = ? AND month = ? AND year = ?", key.Method, key.Month, key.Year)
	if key.UserTypeID == nil {
		query = query.Where("user_type_id IS NULL")
	} else {
		query = query.Where("user_type_id = ?", *key.UserTypeID)
	}

	var run models.SettlementRun
	err := query.Order("version DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repositoryImpl) FindRun(ctx context.Context, id uuid.UUID) (*models.SettlementRun, error) {
	var run models.SettlementRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repositoryImpl) CreateRun(ctx context.Context, run *models.SettlementRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// CompareAndSwap moves run to the target status only if it is still in an allowed source
// status at the lock version the caller read. On success run is updated in memory.
func (r *repositoryImpl) CompareAndSwap(ctx context.Context, run *models.SettlementRun, to enums.SettlementStatus, updates map[string]any) (bool, error) {
	from := transitions[to]
	if len(from) == 0 {
		return false, nil
	}
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	ok, err := r.conditionalUpdate(ctx, run, from, values)
	if ok {
		run.Status = to
	}
	return ok, err
}

// UpdateLocked applies updates without a status change, guarded by the status and lock
// version the caller read.
func (r *repositoryImpl) UpdateLocked(ctx context.Context, run *models.SettlementRun, updates map[string]any) (bool, error) {
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	return r.conditionalUpdate(ctx, run, []enums.SettlementStatus{run.Status}, values)
}

func (r *repositoryImpl) conditionalUpdate(ctx context.Context, run *models.SettlementRun, from []enums.SettlementStatus, values map[string]any) (bool, error) {
	now := time.Now().UTC()
	values["lock_version"] = gorm.Expr("lock_version + 1")
	values["updated_at"] = now

	result := r.db.WithContext(ctx).
		Model(&models.SettlementRun{}).
		Where("id = ? AND status IN ? AND lock_version = ?", run.ID, from, run.LockVersion).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	run.LockVersion++
	run.UpdatedAt = now
	return true, nil
}

// RecordFailure stores reason while run is still PROCESSING at the lock version the caller
// holds. Status, lock version and updated_at are left untouched.
func (r *repositoryImpl) RecordFailure(ctx context.Context, run *models.SettlementRun, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SettlementRun{}).
		Where("id = ? AND status = ? AND lock_version = ?", run.ID, enums.SettlementStatusProcessing, run.LockVersion).
		UpdateColumn("failure_reason", reason)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReplaceBreakdown writes the run's breakdown, discarding one left by an earlier attempt.
// Callers fence it with UpdateLocked in the same transaction.
func (r *repositoryImpl) ReplaceBreakdown(ctx context.Context, row *models.SettlementBreakdown) error {
	if err := r.db.WithContext(ctx).Where("run_id = ?", row.RunID).Delete(&models.SettlementBreakdown{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repositoryImpl) FindBreakdown(ctx context.Context, runID uuid.UUID) (*models.SettlementBreakdown, error) {
	var row models.SettlementBreakdown
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) CreateLog(ctx context.Context, log *models.SettlementLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repositoryImpl) FindLog(ctx context.Context, runID uuid.UUID) (*models.SettlementLog, error) {
	var row models.SettlementLog
	if err := r.db.WithContext(ctx).Where("settlement_run_id = ?", runID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListStalled returns PROCESSING runs that failed or have not moved since updatedBefore.
func (r *repositoryImpl) ListStalled(ctx context.Context, updatedBefore time.Time) ([]models.SettlementRun, error) {
	var runs []models.SettlementRun
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.SettlementStatusProcessing).
		Where("(failure_reason IS NOT NULL OR updated_at < ?)", updatedBefore).
		Order("updated_at ASC, id ASC").
		Find(&runs).Error
	return runs, err
}

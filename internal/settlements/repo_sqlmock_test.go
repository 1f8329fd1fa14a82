package settlements

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

const casPattern = `UPDATE "settlement_runs" SET .*"lock_version"=lock_version \+ 1.* WHERE id = \$\d+ AND status IN \(\$\d+,\$\d+\) AND lock_version = \$\d+`

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(db), mock
}

func TestCompareAndSwapIssuesGuardedUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusPending, LockVersion: 3}

	mock.ExpectExec(casPattern).WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CompareAndSwap(context.Background(), run, enums.SettlementStatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, enums.SettlementStatusProcessing, run.Status)
	assert.Equal(t, 4, run.LockVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwapLosesRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusPending, LockVersion: 3}

	mock.ExpectExec(casPattern).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CompareAndSwap(context.Background(), run, enums.SettlementStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, enums.SettlementStatusPending, run.Status)
	assert.Equal(t, 3, run.LockVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwapPropagatesErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusProcessing}

	mock.ExpectExec(`UPDATE "settlement_runs" SET`).WillReturnError(errors.New("connection reset"))

	ok, err := repo.CompareAndSwap(context.Background(), run, enums.SettlementStatusFinished, map[string]any{"is_missing": false})
	require.Error(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwapRejectsUnknownTarget(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusProcessing}

	ok, err := repo.CompareAndSwap(context.Background(), run, enums.SettlementStatusPending, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureLeavesLockVersion(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusProcessing, LockVersion: 5}

	mock.ExpectExec(`UPDATE "settlement_runs" SET "failure_reason"=\$1 WHERE id = \$2 AND status = \$3 AND lock_version = \$4`).
		WithArgs("[CANCELLED] cancellation requested", sqlmock.AnyArg(), enums.SettlementStatusProcessing, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.RecordFailure(context.Background(), run, "[CANCELLED] cancellation requested")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, run.LockVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureSkipsRunOwnedElsewhere(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := &models.SettlementRun{ID: uuid.New(), Status: enums.SettlementStatusProcessing, LockVersion: 2}

	mock.ExpectExec(`UPDATE "settlement_runs" SET "failure_reason"=\$1 WHERE id = \$2 AND status = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RecordFailure(context.Background(), run, "[STATE_CONFLICT] run changed while processing")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

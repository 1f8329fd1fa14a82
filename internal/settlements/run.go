package settlements

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// transitions lists, per target status, the statuses a run may move from.
// PROCESSING -> PROCESSING is the explicit re-drive of a stalled run.
var transitions = map[enums.SettlementStatus][]enums.SettlementStatus{
	enums.SettlementStatusProcessing: {enums.SettlementStatusPending, enums.SettlementStatusProcessing},
	enums.SettlementStatusFinished:   {enums.SettlementStatusProcessing},
}

// CanTransition reports whether a run in from may move to to.
func CanTransition(from, to enums.SettlementStatus) bool {
	for _, allowed := range transitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// RunKey identifies the settlement of one period. Versions of the same key are distinct runs.
type RunKey struct {
	SupplierID uuid.UUID
	VerticalID uuid.UUID
	UserTypeID *uuid.UUID
	Method     enums.DistributionMethod
	Month      int
	Year       int
}

func keyOf(run models.SettlementRun) RunKey {
	return RunKey{
		SupplierID: run.SupplierID,
		VerticalID: run.VerticalID,
		UserTypeID: run.UserTypeID,
		Method:     run.Method,
		Month:      run.Month,
		Year:       run.Year,
	}
}

// IsCancelled reports whether a pending run was cancelled and is no longer eligible.
func IsCancelled(run models.SettlementRun) bool {
	return run.CancelledAt != nil
}

// IsStalled reports whether a PROCESSING run recorded a failure or has not moved since
// before now-threshold.
func IsStalled(run models.SettlementRun, now time.Time, threshold time.Duration) bool {
	if run.Status != enums.SettlementStatusProcessing {
		return false
	}
	if run.FailureReason != nil {
		return true
	}
	return run.UpdatedAt.Before(now.Add(-threshold))
}

package population

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// Request identifies the population of one settlement run.
type Request struct {
	RunID      uuid.UUID
	SupplierID uuid.UUID
	VerticalID uuid.UUID
	UserTypeID *uuid.UUID
	Month      int
	Year       int
}

// User is one row of a supplier's monthly user snapshot.
type User struct {
	ID            uuid.UUID
	Points        int64
	Name          string
	Phone         string
	DistrictID    *uuid.UUID
	GovernorateID *uuid.UUID
	SegmentID     *uuid.UUID
}

// Source provides settlement populations. Failures of the upstream export service are
// reported as UPSTREAM_UNAVAILABLE.
type Source interface {
	// Entities returns the ordered entity ids for GOVERNORATE, DISTRICT and SEGMENT and nil
	// for every other method.
	Entities(ctx context.Context, method enums.DistributionMethod) ([]uuid.UUID, error)
	// ExportUsers writes the user list to object storage and returns its link.
	ExportUsers(ctx context.Context, req Request) (string, error)
	Users(ctx context.Context, req Request) ([]User, error)
}

package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/incentives-backend/internal/settlements"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

const settlementActor = "settlement-cron"

type settlementEngine interface {
	RunSettlement(ctx context.Context, req settlements.Request) (*models.SettlementRun, error)
	AlreadySettled(ctx context.Context, req settlements.Request) (bool, error)
}

type supplierSource interface {
	ActiveSuppliers(ctx context.Context) ([]models.Supplier, error)
}

type SettlementJobParams struct {
	Logger    *logger.Logger
	Engine    settlementEngine
	Suppliers supplierSource
	Methods   []enums.DistributionMethod
	// SettleOnDay is the first day of the month on which the previous month is settled.
	SettleOnDay int
}

// NewSettlementJob builds the job that settles the previous month for every active supplier.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("settlement engine required")
	}
	if params.Suppliers == nil {
		return nil, fmt.Errorf("supplier source required")
	}
	if len(params.Methods) == 0 {
		return nil, fmt.Errorf("at least one distribution method required")
	}
	for _, m := range params.Methods {
		if !m.IsValid() {
			return nil, fmt.Errorf("invalid distribution method %q", m)
		}
	}
	day := params.SettleOnDay
	if day < 1 || day > 28 {
		day = 1
	}
	return &settlementJob{
		logg:      params.Logger,
		engine:    params.Engine,
		suppliers: params.Suppliers,
		methods:   params.Methods,
		day:       day,
		now:       time.Now,
	}, nil
}

type settlementJob struct {
	logg      *logger.Logger
	engine    settlementEngine
	suppliers supplierSource
	methods   []enums.DistributionMethod
	day       int
	now       func() time.Time
}

func (j *settlementJob) Name() string { return "monthly-settlement" }

func (j *settlementJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	if now.Day() < j.day {
		j.logg.Debug(ctx, "settlement day not reached")
		return nil
	}
	period := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	suppliers, err := j.suppliers.ActiveSuppliers(ctx)
	if err != nil {
		return fmt.Errorf("list active suppliers: %w", err)
	}

	var errs error
	var started, skipped int
	for _, supplier := range suppliers {
		for _, method := range j.methods {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			req := settlements.Request{
				SupplierID: supplier.ID,
				VerticalID: supplier.VerticalID,
				Method:     method,
				Month:      int(period.Month()),
				Year:       period.Year(),
				Actor:      settlementActor,
			}
			ran, err := j.settle(ctx, req)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("supplier %s method %s: %w", supplier.ID, method, err))
				continue
			}
			if ran {
				started++
			} else {
				skipped++
			}
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"period":    period.Format("2006-01"),
		"suppliers": len(suppliers),
		"settled":   started,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	}), "monthly settlement cycle complete")
	return errs
}

// settle reports whether a run was carried out. Settled periods, running periods and
// suppliers without configuration are skipped.
func (j *settlementJob) settle(ctx context.Context, req settlements.Request) (bool, error) {
	done, err := j.engine.AlreadySettled(ctx, req)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	_, err = j.engine.RunSettlement(ctx, req)
	switch {
	case err == nil:
		return true, nil
	case pkgerrors.HasCode(err, pkgerrors.CodeRunInProgress):
		j.logg.Info(j.logg.WithSupplierID(ctx, req.SupplierID), "settlement already running")
		return false, nil
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		j.logg.Debug(j.logg.WithSupplierID(ctx, req.SupplierID), "no incentive rule configured")
		return false, nil
	default:
		return false, err
	}
}

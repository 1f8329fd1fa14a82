package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
	"github.com/angelmondragon/incentives-backend/pkg/metrics"
)

type stalledRunLister interface {
	StalledRuns(ctx context.Context) ([]models.SettlementRun, error)
}

type StalledRunsJobParams struct {
	Logger  *logger.Logger
	Engine  stalledRunLister
	Metrics *metrics.SettlementMetrics
}

// NewStalledRunsJob reports PROCESSING runs that stopped moving. Runs are left for an
// operator to re-drive.
func NewStalledRunsJob(params StalledRunsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("settlement engine required")
	}
	return &stalledRunsJob{logg: params.Logger, engine: params.Engine, metrics: params.Metrics}, nil
}

type stalledRunsJob struct {
	logg    *logger.Logger
	engine  stalledRunLister
	metrics *metrics.SettlementMetrics
}

func (j *stalledRunsJob) Name() string { return "stalled-settlements" }

func (j *stalledRunsJob) Run(ctx context.Context) error {
	runs, err := j.engine.StalledRuns(ctx)
	if err != nil {
		return fmt.Errorf("list stalled runs: %w", err)
	}
	j.metrics.SetStalled(len(runs))
	for _, run := range runs {
		fields := map[string]any{
			"method":     string(run.Method),
			"period":     fmt.Sprintf("%04d-%02d", run.Year, run.Month),
			"version":    run.Version,
			"updated_at": run.UpdatedAt,
		}
		if run.FailureReason != nil {
			fields["failure_reason"] = *run.FailureReason
		}
		runCtx := j.logg.WithSettlementRunID(ctx, run.ID)
		runCtx = j.logg.WithSupplierID(runCtx, run.SupplierID)
		j.logg.Warn(j.logg.WithFields(runCtx, fields), "settlement run stalled")
	}
	return nil
}

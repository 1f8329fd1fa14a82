package settlements

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/internal/aggregation"
	"github.com/angelmondragon/incentives-backend/internal/incentives"
	"github.com/angelmondragon/incentives-backend/internal/population"
	"github.com/angelmondragon/incentives-backend/internal/referencedata"
	pkgdb "github.com/angelmondragon/incentives-backend/pkg/db"
	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
	"github.com/angelmondragon/incentives-backend/pkg/metrics"
	"github.com/angelmondragon/incentives-backend/pkg/outbox"
	"github.com/angelmondragon/incentives-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/incentives-backend/pkg/validate"
)

const (
	runKeyConstraint      = "ux_settlement_runs_key"
	defaultStallThreshold = 6 * time.Hour
	reportContentType     = "text/csv"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type configResolver interface {
	Rule(ctx context.Context, scope incentives.Scope) (*models.IncentiveRule, error)
	Minimum(ctx context.Context, scope incentives.Scope) (*models.MinimumIncentive, error)
	Hold(ctx context.Context, scope incentives.Scope) (*models.HoldIncentive, error)
}

type artifactStore interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, body io.Reader) (string, error)
}

// Request asks for the settlement of one period.
type Request struct {
	SupplierID    uuid.UUID                `json:"supplierId" validate:"required"`
	VerticalID    uuid.UUID                `json:"verticalId" validate:"required"`
	UserTypeID    *uuid.UUID               `json:"userTypeId,omitempty"`
	ProductTypeID *uuid.UUID               `json:"productTypeId,omitempty"`
	ProductID     *uuid.UUID               `json:"productId,omitempty"`
	Method        enums.DistributionMethod `json:"method" validate:"required"`
	Month         int                      `json:"month" validate:"min=1,max=12"`
	Year          int                      `json:"year" validate:"min=2000,max=9999"`
	Action        enums.RewardAction       `json:"action,omitempty" validate:"omitempty,reward_action"`
	Actor         string                   `json:"actor,omitempty" validate:"max=128"`
}

func (r Request) key() RunKey {
	return RunKey{
		SupplierID: r.SupplierID,
		VerticalID: r.VerticalID,
		UserTypeID: r.UserTypeID,
		Method:     r.Method,
		Month:      r.Month,
		Year:       r.Year,
	}
}

func (r Request) action() *enums.RewardAction {
	if r.Action == "" {
		return nil
	}
	a := r.Action
	return &a
}

func (r Request) scope() incentives.Scope {
	vertical, supplier := r.VerticalID, r.SupplierID
	return incentives.Scope{
		VerticalID:    &vertical,
		SupplierID:    &supplier,
		UserTypeID:    r.UserTypeID,
		ProductTypeID: r.ProductTypeID,
		ProductID:     r.ProductID,
		Action:        r.action(),
	}
}

func requestFromRun(run models.SettlementRun) Request {
	req := Request{
		SupplierID:    run.SupplierID,
		VerticalID:    run.VerticalID,
		UserTypeID:    run.UserTypeID,
		ProductTypeID: run.ProductTypeID,
		ProductID:     run.ProductID,
		Method:        run.Method,
		Month:         run.Month,
		Year:          run.Year,
	}
	if run.Action != nil {
		req.Action = *run.Action
	}
	return req
}

// Engine computes settlement runs. It holds no per-run state; at most one computation per
// run key is guaranteed by the conditional status update.
type Engine struct {
	tx             txRunner
	repo           Repository
	resolver       configResolver
	population     population.Source
	refdata        referencedata.Repository
	artifacts      artifactStore
	bucket         string
	reportPrefix   string
	outbox         outboxPublisher
	metrics        *metrics.SettlementMetrics
	logg           *logger.Logger
	stallThreshold time.Duration
	now            func() time.Time
}

type EngineParams struct {
	TxRunner       txRunner
	Repository     Repository
	Resolver       configResolver
	Population     population.Source
	RefData        referencedata.Repository
	Outbox         outboxPublisher
	Logger         *logger.Logger
	Metrics        *metrics.SettlementMetrics
	StallThreshold time.Duration

	// Artifacts is optional; without it runs finish without a preview link.
	Artifacts    artifactStore
	Bucket       string
	ReportPrefix string

	Now func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("incentive resolver required")
	}
	if params.Population == nil {
		return nil, fmt.Errorf("population source required")
	}
	if params.RefData == nil {
		return nil, fmt.Errorf("reference data repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	threshold := params.StallThreshold
	if threshold <= 0 {
		threshold = defaultStallThreshold
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		tx:             params.TxRunner,
		repo:           params.Repository,
		resolver:       params.Resolver,
		population:     params.Population,
		refdata:        params.RefData,
		artifacts:      params.Artifacts,
		bucket:         params.Bucket,
		reportPrefix:   strings.Trim(params.ReportPrefix, "/"),
		outbox:         params.Outbox,
		metrics:        params.Metrics,
		logg:           params.Logger,
		stallThreshold: threshold,
		now:            now,
	}, nil
}

// RunSettlement settles one period. Configuration errors are returned before any run is
// created. Once a run is PROCESSING, failures leave it there with a failure reason.
func (e *Engine) RunSettlement(ctx context.Context, req Request) (*models.SettlementRun, error) {
	if err := validate.Struct(req); err != nil {
		e.metrics.IncRun(string(req.Method), metrics.OutcomeRejected)
		return nil, err
	}
	if !req.Method.IsValid() {
		e.metrics.IncRun("unknown", metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedMethod, "unsupported distribution method").
			WithDetails(map[string]string{"method": string(req.Method)})
	}

	ctx = e.withLogFields(ctx, req)
	cfg, err := e.resolveConfig(ctx, req)
	if err != nil {
		e.metrics.IncRun(string(req.Method), metrics.OutcomeRejected)
		return nil, err
	}

	run, err := e.claim(ctx, req)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeRunInProgress) {
			e.metrics.IncRun(string(req.Method), metrics.OutcomeInProgress)
		}
		return nil, err
	}
	return e.process(ctx, run, req, cfg)
}

// RedriveStalled resumes a stalled PROCESSING run in place.
func (e *Engine) RedriveStalled(ctx context.Context, runID uuid.UUID, actor string) (*models.SettlementRun, error) {
	run, err := e.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != enums.SettlementStatusProcessing {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only PROCESSING runs can be re-driven").
			WithDetails(map[string]string{"status": string(run.Status)})
	}
	if !IsStalled(*run, e.now(), e.stallThreshold) {
		return nil, pkgerrors.New(pkgerrors.CodeRunInProgress, "run is still processing").
			WithDetails(map[string]string{"run_id": run.ID.String()})
	}

	req := requestFromRun(*run)
	req.Actor = actor
	ctx = e.withLogFields(ctx, req)
	ctx = e.logg.WithSettlementRunID(ctx, run.ID)

	now := e.now()
	ok, err := e.repo.CompareAndSwap(ctx, run, enums.SettlementStatusProcessing, map[string]any{
		"failure_reason":   nil,
		"cancel_requested": false,
		"started_at":       now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stalled run")
	}
	if !ok {
		e.metrics.IncRun(string(run.Method), metrics.OutcomeInProgress)
		return nil, pkgerrors.New(pkgerrors.CodeRunInProgress, "run was claimed concurrently")
	}
	run.FailureReason = nil
	run.CancelRequested = false
	run.StartedAt = &now
	e.logg.Info(ctx, "re-driving stalled settlement run")

	cfg, err := e.resolveConfig(ctx, req)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}
	return e.process(ctx, run, req, cfg)
}

// CancelRun cancels a PENDING run or requests cooperative cancellation of a PROCESSING one.
func (e *Engine) CancelRun(ctx context.Context, runID uuid.UUID, actor string) (*models.SettlementRun, error) {
	run, err := e.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	ctx = e.logg.WithSettlementRunID(ctx, run.ID)

	var updates map[string]any
	switch run.Status {
	case enums.SettlementStatusPending:
		if IsCancelled(*run) {
			return run, nil
		}
		now := e.now()
		updates = map[string]any{"cancelled_at": now}
		run.CancelledAt = &now
	case enums.SettlementStatusProcessing:
		if run.CancelRequested {
			return run, nil
		}
		updates = map[string]any{"cancel_requested": true}
		run.CancelRequested = true
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "finished runs cannot be cancelled")
	}

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := e.repo.WithTx(tx).UpdateLocked(ctx, run, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel settlement run")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed concurrently")
		}
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCancelled,
			AggregateType: enums.AggregateSettlementRun,
			AggregateID:   run.ID,
			Actor:         actorRef(actor),
			Data: payloads.SettlementCancelledEvent{
				RunID:      run.ID,
				SupplierID: run.SupplierID,
				Status:     run.Status,
				Requested:  run.Status == enums.SettlementStatusProcessing,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	e.metrics.IncRun(string(run.Method), metrics.OutcomeCancelled)
	e.logg.Info(ctx, "settlement run cancellation recorded")
	return run, nil
}

// AlreadySettled reports whether the period of req has a finished or cancelled latest run,
// in which case schedulers leave it alone.
func (e *Engine) AlreadySettled(ctx context.Context, req Request) (bool, error) {
	latest, err := e.repo.LatestRun(ctx, req.key())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement run")
	}
	if latest == nil {
		return false, nil
	}
	return latest.Status == enums.SettlementStatusFinished || IsCancelled(*latest), nil
}

// StalledRuns lists PROCESSING runs that need an operator.
func (e *Engine) StalledRuns(ctx context.Context) ([]models.SettlementRun, error) {
	runs, err := e.repo.ListStalled(ctx, e.now().Add(-e.stallThreshold))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stalled runs")
	}
	return runs, nil
}

func (e *Engine) resolveConfig(ctx context.Context, req Request) (payoutConfig, error) {
	scope := req.scope()
	rule, err := e.resolver.Rule(ctx, scope)
	if err != nil {
		return payoutConfig{}, err
	}
	cfg := payoutConfig{rule: *rule, action: req.action()}

	// minimum and hold rows do not carry reward streams
	scope.Action = nil
	minimum, err := e.resolver.Minimum(ctx, scope)
	switch {
	case err == nil:
		cfg.minimum = minimum
	case !pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return payoutConfig{}, err
	}
	hold, err := e.resolver.Hold(ctx, scope)
	switch {
	case err == nil:
		cfg.hold = hold
	case !pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return payoutConfig{}, err
	}
	return cfg, nil
}

// claim loads or creates the run for req and moves it to PROCESSING.
func (e *Engine) claim(ctx context.Context, req Request) (*models.SettlementRun, error) {
	latest, err := e.repo.LatestRun(ctx, req.key())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement run")
	}

	var run *models.SettlementRun
	switch {
	case latest == nil:
		run, err = e.createRun(ctx, req, 1)
	case latest.Status == enums.SettlementStatusProcessing:
		return nil, pkgerrors.New(pkgerrors.CodeRunInProgress, "settlement already processing").
			WithDetails(map[string]any{
				"run_id":  latest.ID.String(),
				"stalled": IsStalled(*latest, e.now(), e.stallThreshold),
			})
	case latest.Status == enums.SettlementStatusFinished || IsCancelled(*latest):
		run, err = e.createRun(ctx, req, latest.Version+1)
	default:
		run = latest
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	ok, err := e.repo.CompareAndSwap(ctx, run, enums.SettlementStatusProcessing, map[string]any{"started_at": now})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim settlement run")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeRunInProgress, "settlement claimed concurrently").
			WithDetails(map[string]any{"run_id": run.ID.String()})
	}
	run.StartedAt = &now
	return run, nil
}

func (e *Engine) createRun(ctx context.Context, req Request, version int) (*models.SettlementRun, error) {
	run := &models.SettlementRun{
		SupplierID:    req.SupplierID,
		VerticalID:    req.VerticalID,
		UserTypeID:    req.UserTypeID,
		ProductTypeID: req.ProductTypeID,
		ProductID:     req.ProductID,
		Action:        req.action(),
		Method:        req.Method,
		Month:         req.Month,
		Year:          req.Year,
		Version:       version,
		Status:        enums.SettlementStatusPending,
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		if pkgdb.IsUniqueViolation(err, runKeyConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRunInProgress, err, "settlement version created concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement run")
	}
	return run, nil
}

// process runs everything after the PROCESSING transition.
func (e *Engine) process(ctx context.Context, run *models.SettlementRun, req Request, cfg payoutConfig) (*models.SettlementRun, error) {
	ctx = e.logg.WithSettlementRunID(ctx, run.ID)
	started := e.now()
	e.logg.Info(ctx, "settlement run processing")

	popReq := population.Request{
		RunID:      run.ID,
		SupplierID: run.SupplierID,
		VerticalID: run.VerticalID,
		UserTypeID: run.UserTypeID,
		Month:      run.Month,
		Year:       run.Year,
	}

	pop, err := e.obtainPopulation(ctx, run.Method, popReq)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}
	breakdown, err := aggregation.Aggregate(run.Method, cfg.rule, cfg.action, pop)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}
	row := aggregation.ToModel(run.ID, breakdown)
	if err := e.persistBreakdown(ctx, run, &row); err != nil {
		return nil, e.fail(ctx, run, err)
	}

	if err := e.checkCancelled(ctx, run); err != nil {
		return nil, e.fail(ctx, run, err)
	}

	missing := breakdown.Incomplete()
	var users []population.User
	if !missing {
		users, err = e.population.Users(ctx, popReq)
		switch {
		case pkgerrors.HasCode(err, pkgerrors.CodeUpstreamUnavailable):
			e.logg.Warn(ctx, "user population unavailable, finishing without a log")
			missing, users = true, nil
		case err != nil:
			return nil, e.fail(ctx, run, err)
		}
	}

	districts, governorates, err := lookupNames(ctx, e.refdata, users)
	if err != nil {
		return nil, e.fail(ctx, run, err)
	}
	rows, totals := buildRows(cfg, breakdown, users, districts, governorates)
	link := e.uploadReport(ctx, *run, rows)

	if err := e.finish(ctx, run, req.Actor, rows, totals, missing, link); err != nil {
		return nil, e.fail(ctx, run, err)
	}

	outcome := metrics.OutcomeFinished
	if missing {
		outcome = metrics.OutcomeDegraded
	}
	e.metrics.IncRun(string(run.Method), outcome)
	e.metrics.ObserveDuration(string(run.Method), e.now().Sub(started))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"is_missing": missing,
		"users":      totals.users,
		"version":    run.Version,
	})
	e.logg.Info(logCtx, "settlement run finished")
	return run, nil
}

func (e *Engine) obtainPopulation(ctx context.Context, method enums.DistributionMethod, req population.Request) (aggregation.Population, error) {
	switch {
	case method == enums.DistributionUsers:
		link, err := e.population.ExportUsers(ctx, req)
		if pkgerrors.HasCode(err, pkgerrors.CodeUpstreamUnavailable) {
			e.logg.Warn(ctx, "user export unavailable, breakdown incomplete")
			return aggregation.Population{}, nil
		}
		if err != nil {
			return aggregation.Population{}, err
		}
		return aggregation.Population{Link: link}, nil
	case method.IsEntityScoped():
		ids, err := e.population.Entities(ctx, method)
		if err != nil {
			return aggregation.Population{}, err
		}
		return aggregation.Population{Entities: ids}, nil
	default:
		return aggregation.Population{}, nil
	}
}

// persistBreakdown replaces the breakdown only while run is still the claim this attempt
// holds. The lock version is bumped in the same transaction.
func (e *Engine) persistBreakdown(ctx context.Context, run *models.SettlementRun, row *models.SettlementBreakdown) error {
	snapshot := *run
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		current, err := repo.FindRun(ctx, run.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement run")
		}
		adoptCancelRequest(run, current)

		ok, err := repo.UpdateLocked(ctx, run, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist breakdown")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed while processing").
				WithDetails(map[string]any{"run_id": run.ID.String(), "status": string(current.Status)})
		}
		if err := repo.ReplaceBreakdown(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist breakdown")
		}
		return nil
	})
	if err != nil {
		*run = snapshot
	}
	return err
}

func (e *Engine) checkCancelled(ctx context.Context, run *models.SettlementRun) error {
	current, err := e.repo.FindRun(ctx, run.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement run")
	}
	if current.CancelRequested {
		adoptCancelRequest(run, current)
		e.metrics.IncRun(string(run.Method), metrics.OutcomeCancelled)
		return pkgerrors.New(pkgerrors.CodeCancelled, "cancellation requested")
	}
	if current.Status != run.Status || current.LockVersion != run.LockVersion {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed while processing")
	}
	return nil
}

// adoptCancelRequest accepts current when the only write since run was read is a cancel
// request. Any other change means another attempt owns the run.
func adoptCancelRequest(run, current *models.SettlementRun) bool {
	if run.CancelRequested || !current.CancelRequested {
		return false
	}
	if current.Status != run.Status || current.LockVersion != run.LockVersion+1 {
		return false
	}
	run.CancelRequested = true
	run.LockVersion = current.LockVersion
	return true
}

// uploadReport stores the CSV report and returns its link. Failures only cost the link.
func (e *Engine) uploadReport(ctx context.Context, run models.SettlementRun, rows []models.SettlementLogRow) string {
	if e.artifacts == nil {
		return ""
	}
	body, err := renderReport(rows)
	if err != nil {
		e.logg.Error(ctx, "render settlement report", err)
		return ""
	}
	link, err := e.artifacts.UploadObject(ctx, e.bucket, reportObject(e.reportPrefix, run), reportContentType, bytes.NewReader(body))
	if err != nil {
		e.logg.Error(ctx, "upload settlement report", err)
		return ""
	}
	return link
}

// finish persists the log, flips the run to FINISHED and queues the event atomically.
func (e *Engine) finish(ctx context.Context, run *models.SettlementRun, actor string, rows []models.SettlementLogRow, totals ledgerTotals, missing bool, link string) error {
	now := e.now()
	updates := map[string]any{
		"is_missing":     missing,
		"finished_at":    now,
		"failure_reason": nil,
	}
	var preview *string
	if link != "" {
		preview = &link
		updates["preview_link"] = link
	}

	snapshot := *run
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		log := &models.SettlementLog{
			SettlementRunID: run.ID,
			VerticalID:      run.VerticalID,
			SupplierID:      run.SupplierID,
			Version:         run.Version,
			Rows:            rows,
		}
		if err := repo.CreateLog(ctx, log); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist settlement log")
		}

		ok, err := repo.CompareAndSwap(ctx, run, enums.SettlementStatusFinished, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish settlement run")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run changed while processing")
		}

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementFinished,
			AggregateType: enums.AggregateSettlementRun,
			AggregateID:   run.ID,
			Actor:         actorRef(actor),
			Data: payloads.SettlementFinishedEvent{
				RunID:       run.ID,
				SupplierID:  run.SupplierID,
				VerticalID:  run.VerticalID,
				UserTypeID:  run.UserTypeID,
				Method:      run.Method,
				Month:       run.Month,
				Year:        run.Year,
				Version:     run.Version,
				IsMissing:   missing,
				PreviewLink: link,
				UserCount:   totals.users,
				TotalValue:  totals.value,
				HeldValue:   totals.held,
			},
		})
	})
	if err != nil {
		*run = snapshot
		return err
	}
	run.IsMissing = missing
	run.FinishedAt = &now
	run.FailureReason = nil
	run.PreviewLink = preview
	return nil
}

// fail records err on a PROCESSING run and returns it. The status is left untouched, and a
// run another attempt has taken over is not written to.
func (e *Engine) fail(ctx context.Context, run *models.SettlementRun, err error) error {
	reason := pkgerrors.FailureReason(err)
	recorded, recErr := e.recordFailure(ctx, run, reason)
	switch {
	case recErr != nil:
		e.logg.Error(ctx, "record settlement failure", recErr)
	case !recorded:
		e.logg.Warn(ctx, "settlement run moved on, failure not recorded")
	default:
		run.FailureReason = &reason
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeCancelled) {
		e.metrics.IncRun(string(run.Method), metrics.OutcomeFailed)
	}
	e.logg.Error(ctx, "settlement run stalled", err)
	return err
}

func (e *Engine) recordFailure(ctx context.Context, run *models.SettlementRun, reason string) (bool, error) {
	ok, err := e.repo.RecordFailure(ctx, run, reason)
	if err != nil || ok {
		return ok, err
	}
	current, err := e.repo.FindRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	if !adoptCancelRequest(run, current) {
		return false, nil
	}
	return e.repo.RecordFailure(ctx, run, reason)
}

func (e *Engine) findRun(ctx context.Context, id uuid.UUID) (*models.SettlementRun, error) {
	run, err := e.repo.FindRun(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement run")
	}
	return run, nil
}

func (e *Engine) withLogFields(ctx context.Context, req Request) context.Context {
	ctx = e.logg.WithSupplierID(ctx, req.SupplierID)
	ctx = e.logg.WithPeriod(ctx, req.Month, req.Year)
	return e.logg.WithField(ctx, "method", string(req.Method))
}

func actorRef(actor string) *outbox.ActorRef {
	if strings.TrimSpace(actor) == "" {
		return &outbox.ActorRef{ID: "settlement-engine", Kind: outbox.ActorKindSystem}
	}
	return &outbox.ActorRef{ID: actor, Kind: outbox.ActorKindOperator}
}

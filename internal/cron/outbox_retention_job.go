package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

const (
	defaultPublishedRetention = 30 * 24 * time.Hour
	defaultDLQRetention       = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedPurger
	// DLQ is optional; without it dead-lettered rows are kept forever.
	DLQ                dlqPurger
	PublishedRetention time.Duration
	DLQRetention       time.Duration
}

// outboxRetentionJob trims published outbox rows and old dead letters. Each table is purged in
// its own transaction so one failing purge does not hold back the other.
type outboxRetentionJob struct {
	logg   *logger.Logger
	db     txRunner
	purges []purge
	now    func() time.Time
}

type purge struct {
	table  string
	keep   time.Duration
	delete func(tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}

	purges := []purge{{
		table:  "outbox_events",
		keep:   orDefault(params.PublishedRetention, defaultPublishedRetention),
		delete: params.Repository.DeletePublishedBefore,
	}}
	if params.DLQ != nil {
		purges = append(purges, purge{
			table:  "outbox_dlq",
			keep:   orDefault(params.DLQRetention, defaultDLQRetention),
			delete: params.DLQ.DeleteFailedBefore,
		})
	}
	return &outboxRetentionJob{
		logg:   params.Logger,
		db:     params.DB,
		purges: purges,
		now:    time.Now,
	}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, p := range j.purges {
		cutoff := now.Add(-p.keep)
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := p.delete(tx, cutoff)
			deleted = n
			return err
		})
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"table":        p.table,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		if err != nil {
			j.logg.Error(logCtx, "retention purge failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		j.logg.Info(logCtx, "retention purge complete")
	}
	return errs
}

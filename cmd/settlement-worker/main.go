package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/incentives-backend/internal/cron"
	"github.com/angelmondragon/incentives-backend/internal/incentives"
	"github.com/angelmondragon/incentives-backend/internal/ops"
	"github.com/angelmondragon/incentives-backend/internal/population"
	"github.com/angelmondragon/incentives-backend/internal/referencedata"
	"github.com/angelmondragon/incentives-backend/internal/settlements"
	"github.com/angelmondragon/incentives-backend/pkg/bigquery"
	"github.com/angelmondragon/incentives-backend/pkg/config"
	"github.com/angelmondragon/incentives-backend/pkg/db"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
	"github.com/angelmondragon/incentives-backend/pkg/metrics"
	"github.com/angelmondragon/incentives-backend/pkg/migrate"
	"github.com/angelmondragon/incentives-backend/pkg/outbox"
	"github.com/angelmondragon/incentives-backend/pkg/redis"
	"github.com/angelmondragon/incentives-backend/pkg/storage/gcs"
)

const (
	serviceName     = "settlement-worker"
	lockName        = "settlement-cycle"
	shutdownTimeout = 10 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single cron cycle and exit")
	redrive := flag.String("redrive", "", "settlement run id to re-drive, then exit")
	cancel := flag.String("cancel", "", "settlement run id to cancel, then exit")
	actor := flag.String("actor", "operator", "actor recorded on operator actions")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	refdata := referencedata.NewRepository(dbClient.DB())
	source, err := population.NewBigQuerySource(population.BigQuerySourceParams{
		Warehouse:    bqClient,
		RefData:      refdata,
		Storage:      gcsClient,
		Bucket:       gcsClient.DefaultBucket(),
		ExportPrefix: cfg.GCS.ExportPrefix,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create population source", err)
		os.Exit(1)
	}

	resolver, err := incentives.NewResolver(incentives.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create incentive resolver", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())

	params := settlements.EngineParams{
		TxRunner:       dbClient,
		Repository:     settlements.NewRepository(dbClient.DB()),
		Resolver:       resolver,
		Population:     source,
		RefData:        refdata,
		Outbox:         outbox.NewService(outboxRepo, logg),
		Logger:         logg,
		Metrics:        settlementMetrics,
		StallThreshold: cfg.Settlement.StallThreshold,
		Bucket:         gcsClient.DefaultBucket(),
		ReportPrefix:   cfg.GCS.ReportPrefix,
	}
	if cfg.FeatureFlags.UploadReports {
		params.Artifacts = gcsClient
	}
	engine, err := settlements.NewEngine(params)
	if err != nil {
		logg.Error(ctx, "failed to create settlement engine", err)
		os.Exit(1)
	}

	if *redrive != "" || *cancel != "" {
		if err := runOperatorAction(ctx, logg, engine, *redrive, *cancel, *actor); err != nil {
			logg.Error(ctx, "operator action failed", err)
			os.Exit(1)
		}
		return
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	methods, err := parseMethods(cfg.Settlement.Methods)
	if err != nil {
		logg.Error(ctx, "invalid settlement methods", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(logg, cfg, engine, refdata, settlementMetrics, dbClient, outboxRepo, methods)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), holderName(), cfg.Settlement.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(registry),
		Interval:   cfg.Settlement.CronInterval,
		JobTimeout: cfg.Settlement.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	if *once {
		service.RunOnce(ctx)
		return
	}

	srv := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: ops.NewRouter(ops.RouterParams{
			Logger: logg,
			Env:    cfg.App.Env,
			Checks: map[string]ops.Pinger{
				"db":       dbClient,
				"redis":    redisClient,
				"gcs":      gcsClient,
				"bigquery": bqClient,
			},
			Gatherer: registry,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logg.Info(ctx, "ops server listening on "+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server failed", err)
			stop()
		}
	}()

	logg.Info(ctx, "starting settlement worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "settlement worker stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "ops server shutdown failed", err)
	}

	logg.Info(ctx, "settlement worker shutting down gracefully")
}

func buildJobs(
	logg *logger.Logger,
	cfg *config.Config,
	engine *settlements.Engine,
	refdata referencedata.Repository,
	settlementMetrics *metrics.SettlementMetrics,
	dbClient *db.Client,
	outboxRepo *outbox.Repository,
	methods []enums.DistributionMethod,
) ([]cron.Job, error) {
	settle, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger:      logg,
		Engine:      engine,
		Suppliers:   refdata,
		Methods:     methods,
		SettleOnDay: cfg.Settlement.SettleOnDay,
	})
	if err != nil {
		return nil, err
	}
	stalled, err := cron.NewStalledRunsJob(cron.StalledRunsJobParams{
		Logger:  logg,
		Engine:  engine,
		Metrics: settlementMetrics,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:             logg,
		DB:                 dbClient,
		Repository:         outboxRepo,
		DLQ:                outbox.NewDLQRepository(dbClient.DB()),
		PublishedRetention: cfg.Outbox.PublishedRetention,
		DLQRetention:       cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{settle, stalled, retention}, nil
}

func runOperatorAction(ctx context.Context, logg *logger.Logger, engine *settlements.Engine, redrive, cancel, actor string) error {
	if redrive != "" {
		id, err := uuid.Parse(redrive)
		if err != nil {
			return err
		}
		run, err := engine.RedriveStalled(ctx, id, actor)
		if err != nil {
			return err
		}
		logg.Info(logg.WithSettlementRunID(ctx, run.ID), "settlement run re-driven to "+string(run.Status))
	}
	if cancel != "" {
		id, err := uuid.Parse(cancel)
		if err != nil {
			return err
		}
		run, err := engine.CancelRun(ctx, id, actor)
		if err != nil {
			return err
		}
		logg.Info(logg.WithSettlementRunID(ctx, run.ID), "settlement run cancellation recorded")
	}
	return nil
}

func parseMethods(values []string) ([]enums.DistributionMethod, error) {
	out := make([]enums.DistributionMethod, 0, len(values))
	for _, v := range values {
		m, err := enums.ParseDistributionMethod(v)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func holderName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return serviceName
	}
	return host
}

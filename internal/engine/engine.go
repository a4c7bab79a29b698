// Package engine assembles the billing engine from configuration: the
// PostgreSQL pool and repositories, the circuit-breaking store, the
// reconciler and hooks, the sweeper and its job wrapper.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"tuition/internal/billing"
	"tuition/internal/config"
	"tuition/internal/db"
	"tuition/internal/queue"
	"tuition/internal/scheduler"
)

// Engine holds the wired components. Entry points use Job for scheduled
// sweeps and Hooks for enrollment events.
type Engine struct {
	Store      billing.Store
	Reconciler *billing.Reconciler
	Hooks      *billing.Hooks
	Sweeper    *scheduler.BillingSweeper
	Job        *scheduler.SweepJob

	pool *pgxpool.Pool
}

// Deps are the storage-facing pieces Assemble wires together.
type Deps struct {
	Store      billing.Store
	JobLock    scheduler.JobLocker
	JobHistory scheduler.JobHistorian
	Metrics    scheduler.SweepMetrics
}

// Assemble builds an Engine over already-constructed dependencies.
func Assemble(cfg config.BillingConfig, deps Deps, workerID string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := billing.ParsePeriodKey(cfg.PeriodKey)
	if err != nil {
		return nil, err
	}

	rec := billing.NewReconciler(deps.Store, key, billing.NewStudentLocks(), logger)
	sweeper := scheduler.NewBillingSweeper(deps.Store, rec, deps.Metrics, scheduler.SweepOptions{
		Concurrency:    cfg.Concurrency,
		StudentTimeout: cfg.StudentTimeout,
	}, logger)

	return &Engine{
		Store:      deps.Store,
		Reconciler: rec,
		Hooks:      billing.NewHooks(rec),
		Sweeper:    sweeper,
		Job: &scheduler.SweepJob{
			Sweeper:    sweeper,
			JobLock:    deps.JobLock,
			JobHistory: deps.JobHistory,
			WorkerID:   workerID,
			LockTTL:    cfg.LockTTL,
			Logger:     logger,
		},
	}, nil
}

// New connects to PostgreSQL, optionally applies the schema, and assembles
// the engine. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, workerID string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.InfoContext(ctx, "database schema ensured")
	}

	var metrics scheduler.SweepMetrics = scheduler.NoopSweepMetrics{}
	if cfg.Observability.EnableMetrics {
		cw, err := newCloudWatchClient(ctx, cfg.AWS)
		if err != nil {
			pool.Close()
			return nil, err
		}
		metrics = scheduler.NewCloudWatchSweepMetrics(cw, cfg.Observability.MetricNamespace, cfg.Service, logger)
	}

	eng, err := Assemble(cfg.Billing, Deps{
		Store:      db.NewGuardedStore(db.NewBillingRepository(pool), "billing-store", logger),
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		Metrics:    metrics,
	}, workerID, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	eng.pool = pool
	return eng, nil
}

// Close releases the connection pool.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func newCloudWatchClient(ctx context.Context, cfg config.AWSConfig) (*cloudwatch.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for CloudWatch (region=%s): %w", cfg.Region, err)
	}
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	}), nil
}

// NewEnrollmentPublisher returns a publisher for the configured enrollment
// queue. It fails when ENROLLMENT_QUEUE_URL is unset.
func NewEnrollmentPublisher(ctx context.Context, cfg config.AWSConfig, logger *slog.Logger) (*queue.EnrollmentPublisher, error) {
	if cfg.EnrollmentQueueURL == "" {
		return nil, fmt.Errorf("ENROLLMENT_QUEUE_URL is not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SQS (region=%s): %w", cfg.Region, err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
	return queue.NewEnrollmentPublisher(client, cfg.EnrollmentQueueURL, logger), nil
}

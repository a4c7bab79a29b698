// Package main is the entrypoint for the billing sweeper Lambda function.
//
// An EventBridge schedule (daily by default) invokes the handler with a
// SweepPayload. The handler runs one billing sweep under the cross-process
// job lock and returns the sweep Summary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"tuition/internal/config"
	"tuition/internal/engine"
	"tuition/internal/scheduler"
)

// JobRunner runs one locked sweep. Implemented by *scheduler.SweepJob.
type JobRunner interface {
	Run(ctx context.Context, now time.Time) (scheduler.Summary, error)
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	Job    JobRunner
	Logger *slog.Logger
	Now    func() time.Time
}

// Handle runs the sweep described by payload.
func (h *Handler) Handle(ctx context.Context, payload scheduler.SweepPayload) (scheduler.Summary, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if payload.Task != "" && payload.Task != scheduler.TaskBillingSweep {
		return scheduler.Summary{}, fmt.Errorf("unknown task type: %q", payload.Task)
	}

	now := h.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.InfoContext(ctx, "billing sweeper invoked",
		"reference_time", now.Format(time.RFC3339),
	)

	summary, err := h.Job.Run(ctx, now)
	if err != nil {
		logger.ErrorContext(ctx, "billing sweep failed", "error", err)
		return summary, err
	}

	logger.InfoContext(ctx, "billing sweep complete",
		"summary", summary.String(),
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func main() {
	logger := config.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	logger.Info("billing sweeper initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", cfg.Service, "version", cfg.Build.Version)

	// Identifies this instance as the owner of the job lock.
	workerID := uuid.New().String()

	eng, err := engine.New(context.Background(), cfg, workerID, logger)
	if err != nil {
		logger.Error("failed to initialize billing engine", "error", err)
		os.Exit(1)
	}
	// The pool lives for the life of the execution environment; Lambda
	// freezes rather than exits, so it is never closed here.

	handler := &Handler{Job: eng.Job, Logger: logger}

	logger.Info("billing sweeper initialized",
		"worker_id", workerID,
		"period_key", cfg.Billing.PeriodKey,
		"concurrency", cfg.Billing.Concurrency,
	)

	lambda.Start(handler.Handle)
}

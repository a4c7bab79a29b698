// Package main is the entrypoint for the enrollment worker Lambda function.
//
// The worker consumes enrollment events from the enrollment SQS queue and
// runs the matching billing hook for each one. It uses partial batch
// responses: a record whose hook fails with a transient error is reported in
// BatchItemFailures so SQS redelivers only that record. Records that can
// never succeed (malformed body, unknown student, corrupt snapshot) are
// logged and acknowledged.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"tuition/internal/billing"
	"tuition/internal/config"
	"tuition/internal/engine"
	"tuition/internal/queue"
	"tuition/internal/types"
)

// HookRunner runs enrollment hooks. Implemented by *billing.Hooks.
type HookRunner interface {
	OnStudentEnrolled(ctx context.Context, studentID int64, now time.Time) (billing.HookResult, error)
	OnStudentEnrollmentChanged(ctx context.Context, studentID int64, now time.Time) (billing.HookResult, error)
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	Hooks  HookRunner
	Logger *slog.Logger
}

// Handle processes a batch of enrollment events.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger().ErrorContext(ctx, "failed to process enrollment event",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage returns an error only when redelivery may succeed.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	ev, err := queue.DecodeEnrollmentEvent(record.Body)
	if err != nil {
		h.logger().WarnContext(ctx, "dropping undecodable enrollment event",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	logger := h.logger().With(
		"message_id", record.MessageId,
		"event_id", ev.EventID,
		"kind", string(ev.Kind),
		"student_id", ev.StudentID,
	)

	var res billing.HookResult
	switch ev.Kind {
	case queue.EventEnrolled:
		res, err = h.Hooks.OnStudentEnrolled(ctx, ev.StudentID, ev.OccurredAt)
	case queue.EventEnrollmentChanged:
		res, err = h.Hooks.OnStudentEnrollmentChanged(ctx, ev.StudentID, ev.OccurredAt)
	default:
		// DecodeEnrollmentEvent rejects other kinds.
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}

	if err != nil {
		if types.IsNotFound(err) || types.IsMalformed(err) {
			logger.WarnContext(ctx, "enrollment event cannot be applied; acknowledging",
				"error_code", string(types.CodeOf(err)),
				"error", err,
			)
			return nil
		}
		return err
	}

	logger.InfoContext(ctx, "enrollment event applied", "outcome", string(res.Outcome))
	return nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func main() {
	logger := config.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	logger.Info("enrollment worker initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", cfg.Service, "version", cfg.Build.Version)

	eng, err := engine.New(context.Background(), cfg, "enrollment-worker-"+uuid.New().String(), logger)
	if err != nil {
		logger.Error("failed to initialize billing engine", "error", err)
		os.Exit(1)
	}

	handler := &Handler{Hooks: eng.Hooks, Logger: logger}

	logger.Info("enrollment worker initialized", "period_key", cfg.Billing.PeriodKey)

	lambda.Start(handler.Handle)
}

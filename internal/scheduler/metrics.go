package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published per sweep.
const (
	MetricObligationsCreated   = "ObligationsCreated"
	MetricObligationsSatisfied = "ObligationsSatisfied"
	MetricCyclesOpen           = "CyclesOpen"
	MetricStudentsErrored      = "StudentsErrored"
	MetricSweepDuration        = "SweepDuration"

	DimService = "Service"
)

// SweepMetrics records the outcome of a sweep. Implementations must not fail
// the sweep; publishing errors are logged and dropped.
type SweepMetrics interface {
	RecordSweep(ctx context.Context, summary Summary, duration time.Duration)
}

// NoopSweepMetrics discards all metrics.
type NoopSweepMetrics struct{}

func (NoopSweepMetrics) RecordSweep(context.Context, Summary, time.Duration) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ SweepMetrics = (*CloudWatchSweepMetrics)(nil)

// CloudWatchSweepMetrics publishes one datum per counter plus the sweep
// duration, all dimensioned by service name, in a single PutMetricData call.
type CloudWatchSweepMetrics struct {
	client    CloudWatchClient
	namespace string
	service   string
	logger    *slog.Logger
}

// NewCloudWatchSweepMetrics creates a CloudWatchSweepMetrics.
func NewCloudWatchSweepMetrics(client CloudWatchClient, namespace, service string, logger *slog.Logger) *CloudWatchSweepMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchSweepMetrics{
		client:    client,
		namespace: namespace,
		service:   service,
		logger:    logger,
	}
}

// RecordSweep implements SweepMetrics. Skipped sweeps publish nothing.
func (m *CloudWatchSweepMetrics) RecordSweep(ctx context.Context, summary Summary, duration time.Duration) {
	if summary.Skipped {
		return
	}

	dims := []cwtypes.Dimension{
		{Name: aws.String(DimService), Value: aws.String(m.service)},
	}
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(MetricObligationsCreated, summary.Created),
			count(MetricObligationsSatisfied, summary.Satisfied),
			count(MetricCyclesOpen, summary.SkippedOpen),
			count(MetricStudentsErrored, summary.Errored),
			{
				MetricName: aws.String(MetricSweepDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record sweep metrics",
			"error", err.Error(),
			"namespace", m.namespace,
		)
	}
}

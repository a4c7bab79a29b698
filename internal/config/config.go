// Package config defines the configuration of the tuition billing engine.
// Configuration is loaded once when a process starts and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails the load.
package config

import (
	"time"

	"tuition/internal/types"
)

// SecretString is an alias for types.SecretString so secrets in config never
// reach a log line in clear text.
type SecretString = types.SecretString

// Config is the top-level configuration. Entry points hand each component
// only the subset it needs.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tuition-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env.
	Build BuildInfo
}

// DatabaseConfig holds the PostgreSQL connection string and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// AutoMigrate applies the idempotent schema on start.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// AWSConfig holds the region, an optional LocalStack endpoint and the
// enrollment event queue.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`

	// EnrollmentQueueURL receives enrollment events. Empty disables
	// publishing.
	EnrollmentQueueURL string `envconfig:"ENROLLMENT_QUEUE_URL" validate:"omitempty,url"`
}

// BillingConfig tunes the billing sweep.
type BillingConfig struct {
	// SweepInterval is the cadence of the in-process loop. Billing is
	// date-granular, so anything below an hour is rejected.
	SweepInterval  time.Duration `envconfig:"BILLING_SWEEP_INTERVAL" default:"24h" validate:"min=1h"`
	Concurrency    int           `envconfig:"BILLING_SWEEP_CONCURRENCY" default:"4" validate:"min=1,max=64"`
	StudentTimeout time.Duration `envconfig:"BILLING_STUDENT_TIMEOUT" default:"10s" validate:"min=1s"`
	LockTTL        time.Duration `envconfig:"BILLING_LOCK_TTL" default:"30m" validate:"min=1m"`
	// PeriodKey is parsed by billing.ParsePeriodKey.
	PeriodKey      string        `envconfig:"BILLING_PERIOD_KEY" default:"month" validate:"oneof=month year_month"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TuitionBilling"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

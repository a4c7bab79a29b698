// Package main implements the sweep-runner CLI for running the billing
// engine outside Lambda: one-off or backfill sweeps, a long-running sweep
// loop, the enrollment hooks, and a per-student statement.
//
// Usage:
//
//	go run ./cmd/tools/sweep-runner
//	go run ./cmd/tools/sweep-runner -reference-time=2024-03-03T06:00:00Z
//	go run ./cmd/tools/sweep-runner -loop
//	go run ./cmd/tools/sweep-runner -enrolled=42
//	go run ./cmd/tools/sweep-runner -changed=42
//	go run ./cmd/tools/sweep-runner -changed=42 -publish
//	go run ./cmd/tools/sweep-runner -report=42
//	go run ./cmd/tools/sweep-runner -migrate
//
// Configuration comes from the environment (or .env) exactly as for the
// Lambda; APP_ENV=local skips SSM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tuition/internal/billing"
	"tuition/internal/config"
	"tuition/internal/engine"
	"tuition/internal/queue"
	"tuition/internal/scheduler"
)

type mode string

const (
	modeSweep    mode = "sweep"
	modeLoop     mode = "loop"
	modeEnrolled mode = "enrolled"
	modeChanged  mode = "changed"
	modeReport   mode = "report"
	modeMigrate  mode = "migrate"
)

type options struct {
	mode          mode
	studentID     int64
	referenceTime *time.Time
	logLevel      string
	publish       bool
}

// parseFlags reads args into options. At most one of -loop, -enrolled,
// -changed, -report and -migrate may be given; none selects a single sweep.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("sweep-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	refTime := fs.String("reference-time", "", "Override now (RFC3339, e.g. 2024-03-03T06:00:00Z)")
	loop := fs.Bool("loop", false, "Sweep now and then every BILLING_SWEEP_INTERVAL until interrupted")
	enrolled := fs.Int64("enrolled", 0, "Run the enrollment hook for this student id")
	changed := fs.Int64("changed", 0, "Run the enrollment-change hook for this student id")
	report := fs.Int64("report", 0, "Print the billing statement for this student id")
	migrate := fs.Bool("migrate", false, "Apply the database schema and exit")
	logLevel := fs.String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	publish := fs.Bool("publish", false, "With -enrolled or -changed, send the event to ENROLLMENT_QUEUE_URL instead of running the hook")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{mode: modeSweep, logLevel: *logLevel, publish: *publish}
	var selected []string
	if *loop {
		opts.mode = modeLoop
		selected = append(selected, "-loop")
	}
	if *enrolled != 0 {
		opts.mode, opts.studentID = modeEnrolled, *enrolled
		selected = append(selected, "-enrolled")
	}
	if *changed != 0 {
		opts.mode, opts.studentID = modeChanged, *changed
		selected = append(selected, "-changed")
	}
	if *report != 0 {
		opts.mode, opts.studentID = modeReport, *report
		selected = append(selected, "-report")
	}
	if *migrate {
		opts.mode = modeMigrate
		selected = append(selected, "-migrate")
	}
	if len(selected) > 1 {
		return options{}, fmt.Errorf("flags %s are mutually exclusive", strings.Join(selected, ", "))
	}
	if opts.studentID < 0 {
		return options{}, fmt.Errorf("student id must be positive, got %d", opts.studentID)
	}
	if opts.publish && opts.mode != modeEnrolled && opts.mode != modeChanged {
		return options{}, errors.New("-publish requires -enrolled or -changed")
	}

	if *refTime != "" {
		if opts.mode == modeLoop {
			return options{}, errors.New("-reference-time cannot be combined with -loop")
		}
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return options{}, fmt.Errorf("invalid -reference-time %q (expected RFC3339): %w", *refTime, err)
		}
		t = t.UTC()
		opts.referenceTime = &t
	}
	return opts, nil
}

func (o options) now() time.Time {
	if o.referenceTime != nil {
		return *o.referenceTime
	}
	return time.Now().UTC()
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := config.NewLogger(os.Stderr, level)
	if opts.mode == modeMigrate {
		cfg.Database.AutoMigrate = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.publish {
		pub, err := engine.NewEnrollmentPublisher(ctx, cfg.AWS, logger)
		if err == nil {
			err = publishEvent(ctx, opts, pub, os.Stdout)
		}
		if err != nil {
			logger.Error("failed to publish enrollment event", "error", err)
			cancel()
			os.Exit(1)
		}
		return
	}

	workerID := "sweep-runner-" + uuid.New().String()
	eng, err := engine.New(ctx, cfg, workerID, logger)
	if err != nil {
		logger.Error("failed to initialize billing engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	if err := execute(ctx, opts, cfg, eng, os.Stdout, logger); err != nil {
		logger.Error("sweep-runner failed", "mode", string(opts.mode), "error", err)
		cancel()
		eng.Close()
		os.Exit(1)
	}
}

// execute runs the selected mode and writes its JSON result to out.
func execute(ctx context.Context, opts options, cfg *config.Config, eng *engine.Engine, out io.Writer, logger *slog.Logger) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	switch opts.mode {
	case modeMigrate:
		logger.InfoContext(ctx, "schema applied")
		return nil

	case modeLoop:
		logger.InfoContext(ctx, "starting sweep loop", "interval", cfg.Billing.SweepInterval.String())
		scheduler.Loop(ctx, eng.Job.Run, cfg.Billing.SweepInterval, logger)
		return nil

	case modeEnrolled:
		res, err := eng.Hooks.OnStudentEnrolled(ctx, opts.studentID, opts.now())
		if err != nil {
			return err
		}
		return enc.Encode(res)

	case modeChanged:
		res, err := eng.Hooks.OnStudentEnrollmentChanged(ctx, opts.studentID, opts.now())
		if err != nil {
			return err
		}
		return enc.Encode(res)

	case modeReport:
		student, err := eng.Store.GetStudent(ctx, opts.studentID)
		if err != nil {
			return err
		}
		return enc.Encode(billing.BuildStatement(student))

	default:
		summary, err := eng.Job.Run(ctx, opts.now())
		if err != nil {
			return err
		}
		return enc.Encode(summary)
	}
}

// EventPublisher enqueues enrollment events. Implemented by
// *queue.EnrollmentPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, kind queue.EventKind, studentID int64, occurredAt time.Time) (queue.EnrollmentEvent, error)
}

// publishEvent sends the event selected by opts and writes it to out.
func publishEvent(ctx context.Context, opts options, pub EventPublisher, out io.Writer) error {
	kind := queue.EventEnrolled
	if opts.mode == modeChanged {
		kind = queue.EventEnrollmentChanged
	}
	ev, err := pub.Publish(ctx, kind, opts.studentID, opts.now())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ev)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/billing"
	"tuition/internal/config"
	"tuition/internal/engine"
	"tuition/internal/queue"
	"tuition/internal/types"
)

func TestParseFlagsDefaultsToSingleSweep(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, modeSweep, opts.mode)
	assert.Nil(t, opts.referenceTime)
}

func TestParseFlagsModes(t *testing.T) {
	tests := []struct {
		args    []string
		mode    mode
		student int64
	}{
		{[]string{"-loop"}, modeLoop, 0},
		{[]string{"-enrolled=42"}, modeEnrolled, 42},
		{[]string{"-changed", "7"}, modeChanged, 7},
		{[]string{"-report=3"}, modeReport, 3},
		{[]string{"-migrate"}, modeMigrate, 0},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			opts, err := parseFlags(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, opts.mode)
			assert.Equal(t, tt.student, opts.studentID)
		})
	}
}

func TestParseFlagsReferenceTimeIsUTC(t *testing.T) {
	opts, err := parseFlags([]string{"-reference-time=2024-03-03T01:00:00+05:00"}, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, opts.referenceTime)
	assert.Equal(t, time.UTC, opts.referenceTime.Location())
	assert.Equal(t, time.Date(2024, 3, 2, 20, 0, 0, 0, time.UTC), opts.now())
}

func TestParseFlagsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"two modes", []string{"-loop", "-report=1"}, "mutually exclusive"},
		{"bad time", []string{"-reference-time=yesterday"}, "invalid -reference-time"},
		{"loop with time", []string{"-loop", "-reference-time=2024-01-01T00:00:00Z"}, "cannot be combined"},
		{"negative id", []string{"-report=-4"}, "must be positive"},
		{"publish without hook", []string{"-publish", "-report=1"}, "-publish requires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := parseFlags([]string{"-h"}, io.Discard)
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

// oneStudentStore serves a single student and records created obligations.
type oneStudentStore struct {
	student types.Student
}

func (s *oneStudentStore) ListStudentsWithEnrollmentAndPayments(context.Context) ([]types.Student, error) {
	return []types.Student{s.student}, nil
}

func (s *oneStudentStore) GetStudent(_ context.Context, id int64) (*types.Student, error) {
	if id != s.student.ID {
		return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil)
	}
	c := s.student
	return &c, nil
}

func (s *oneStudentStore) CreateObligation(_ context.Context, ob *types.Obligation) (string, error) {
	s.student.Obligations = append([]types.Obligation{*ob}, s.student.Obligations...)
	return ob.ID, nil
}

func (s *oneStudentStore) UpdateObligationAmounts(context.Context, string, types.ObligationAmounts) error {
	return nil
}

func newTestRun(t *testing.T, store *oneStudentStore) (*config.Config, *engine.Engine) {
	t.Helper()
	cfg := &config.Config{Billing: config.BillingConfig{
		SweepInterval:  24 * time.Hour,
		Concurrency:    1,
		StudentTimeout: time.Second,
		LockTTL:        time.Minute,
		PeriodKey:      string(billing.PeriodKeyMonth),
	}}
	eng, err := engine.Assemble(cfg.Billing, engine.Deps{Store: store}, "test", slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	return cfg, eng
}

func TestExecuteEnrolledAndReport(t *testing.T) {
	store := &oneStudentStore{student: types.Student{
		ID:               5,
		RegistrationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Subjects:         []types.Subject{{ID: 1, Name: "Math", MonthlyPrice: decimal.NewFromInt(100)}},
	}}
	cfg, eng := newTestRun(t, store)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ref := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	err := execute(context.Background(), options{mode: modeEnrolled, studentID: 5, referenceTime: &ref}, cfg, eng, &out, logger)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"Outcome": "created"`)
	require.Len(t, store.student.Obligations, 1)

	out.Reset()
	err = execute(context.Background(), options{mode: modeReport, studentID: 5}, cfg, eng, &out, logger)
	require.NoError(t, err)

	var statement struct {
		StudentID   int64
		Outstanding string
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &statement))
	assert.Equal(t, int64(5), statement.StudentID)
	assert.Equal(t, "100", statement.Outstanding, "one subject carries no discount, nothing paid")
}

func TestExecuteReportUnknownStudent(t *testing.T) {
	cfg, eng := newTestRun(t, &oneStudentStore{student: types.Student{ID: 1}})

	err := execute(context.Background(), options{mode: modeReport, studentID: 9}, cfg, eng, io.Discard, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

type recordingPublisher struct {
	kind    queue.EventKind
	student int64
	at      time.Time
}

func (p *recordingPublisher) Publish(_ context.Context, kind queue.EventKind, id int64, at time.Time) (queue.EnrollmentEvent, error) {
	p.kind, p.student, p.at = kind, id, at
	return queue.EnrollmentEvent{EventID: "evt-1", Kind: kind, StudentID: id, OccurredAt: at}, nil
}

func TestPublishEventSendsSelectedKind(t *testing.T) {
	opts, err := parseFlags([]string{"-changed=12", "-publish", "-reference-time=2024-02-10T09:30:00Z"}, io.Discard)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	var out bytes.Buffer
	require.NoError(t, publishEvent(context.Background(), opts, pub, &out))

	assert.Equal(t, queue.EventEnrollmentChanged, pub.kind)
	assert.Equal(t, int64(12), pub.student)
	assert.Equal(t, time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC), pub.at)

	var ev queue.EnrollmentEvent
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.Equal(t, "evt-1", ev.EventID)
}

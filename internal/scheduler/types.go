// Package scheduler drives the billing engine on a fixed cadence.
//
// BillingSweeper runs one sweep over the student population. SweepJob wraps a
// sweep with the cross-process job lock and job history bookkeeping used by
// both the Lambda entry point and the sweep-runner CLI. Loop repeats a job on
// an interval for long-running deployments.
package scheduler

import (
	"fmt"
	"time"

	"tuition/internal/types"
)

// TaskType identifies a scheduled task in payloads, job locks and job history.
type TaskType string

const (
	TaskBillingSweep TaskType = "billing_sweep"
)

// SweepPayload is the JSON payload sent by EventBridge to the sweeper Lambda.
//
//	{
//	  "task": "billing_sweep",                   // optional
//	  "reference_time": "2024-02-01T06:00:00Z"   // optional
//	}
type SweepPayload struct {
	Task TaskType `json:"task,omitempty"`
	// ReferenceTime overrides "now" for backfills and manual runs. If nil,
	// time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Failure records one student the sweep could not evaluate.
type Failure struct {
	StudentID int64           `json:"student_id"`
	Code      types.ErrorCode `json:"code"`
	Message   string          `json:"message"`
}

// Summary is the outcome of one sweep.
type Summary struct {
	ReferenceTime time.Time `json:"reference_time"`

	Students    int `json:"students"`
	Created     int `json:"created"`
	Satisfied   int `json:"satisfied"`
	SkippedOpen int `json:"skipped_open"`
	Errored     int `json:"errored"`

	// Failures lists errored students ordered by id.
	Failures []Failure `json:"failures,omitempty"`

	// Skipped is set when the sweep did not run because another sweep was
	// already in flight; SkipReason is then conflict_sweep_running.
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason types.ErrorCode `json:"skip_reason,omitempty"`
}

// skippedSummary reports a sweep that yielded to one already in flight.
func skippedSummary(now time.Time) Summary {
	return Summary{ReferenceTime: now, Skipped: true, SkipReason: types.ErrCodeConflictSweepRunning}
}

// Evaluated is the number of students the sweep reached a decision for.
func (s Summary) Evaluated() int {
	return s.Students - s.Errored
}

func (s Summary) String() string {
	if s.Skipped {
		return "sweep skipped: already running"
	}
	return fmt.Sprintf("students=%d created=%d satisfied=%d skipped_open=%d errored=%d",
		s.Students, s.Created, s.Satisfied, s.SkippedOpen, s.Errored)
}

// Package queue carries enrollment events from the student-management write
// path to the enrollment worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tuition/internal/types"
)

// EventKind names the enrollment write that produced an event.
type EventKind string

const (
	EventEnrolled          EventKind = "enrolled"
	EventEnrollmentChanged EventKind = "enrollment_changed"
)

// EnrollmentEvent is the SQS message body.
//
//	{
//	  "event_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
//	  "kind": "enrollment_changed",
//	  "student_id": 42,
//	  "occurred_at": "2024-02-10T09:30:00Z"
//	}
type EnrollmentEvent struct {
	EventID    string    `json:"event_id" validate:"required"`
	Kind       EventKind `json:"kind" validate:"required,oneof=enrolled enrollment_changed"`
	StudentID  int64     `json:"student_id" validate:"gt=0"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
}

var validate = validator.New()

// DecodeEnrollmentEvent parses and validates a message body. Failures are
// validation_malformed_record errors; redelivering the message cannot fix
// them.
func DecodeEnrollmentEvent(body string) (EnrollmentEvent, error) {
	var ev EnrollmentEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ev, types.NewAppError(types.ErrCodeValidationMalformed, "enrollment event is not valid JSON", err)
	}
	if err := validate.Struct(ev); err != nil {
		return ev, types.NewAppErrorWithDetails(types.ErrCodeValidationMalformed, "invalid enrollment event", err,
			map[string]any{"event_id": ev.EventID})
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, nil
}

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EnrollmentPublisher sends enrollment events to one queue. On a FIFO queue
// events are grouped by student, so one student's events are consumed in
// order.
type EnrollmentPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	newID    func() string
}

// NewEnrollmentPublisher creates an EnrollmentPublisher for queueURL.
func NewEnrollmentPublisher(client SQSSender, queueURL string, logger *slog.Logger) *EnrollmentPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Publish enqueues an event of kind for studentID and returns it.
func (p *EnrollmentPublisher) Publish(ctx context.Context, kind EventKind, studentID int64, occurredAt time.Time) (EnrollmentEvent, error) {
	ev := EnrollmentEvent{
		EventID:    p.newID(),
		Kind:       kind,
		StudentID:  studentID,
		OccurredAt: occurredAt.UTC(),
	}
	if err := validate.Struct(ev); err != nil {
		return ev, types.NewAppError(types.ErrCodeValidationMalformed, "invalid enrollment event", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("queue: failed to marshal EnrollmentEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(kind)),
			},
		},
	}
	if strings.HasSuffix(p.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(strconv.FormatInt(studentID, 10))
		input.MessageDeduplicationId = aws.String(ev.EventID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return ev, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to send enrollment event to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "enrollment event sent",
		"event_id", ev.EventID,
		"kind", string(kind),
		"student_id", studentID,
	)
	return ev, nil
}

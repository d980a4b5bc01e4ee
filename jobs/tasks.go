package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGenerateSchedule generates one month of assignments for an organization.
	TaskGenerateSchedule = "schedule:generate"
	// TaskIdempotencyCleanup prunes processed request keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ErrMissingRequestID rejects generation payloads without an idempotency key.
var ErrMissingRequestID = errors.New("jobs: request_id required")

// GenerateSchedulePayload is the wire format of TaskGenerateSchedule.
type GenerateSchedulePayload struct {
	RequestID        string `json:"request_id"`
	OrganizationID   int64  `json:"organization_id"`
	ShiftPatternID   int64  `json:"shift_pattern_id"`
	Year             int    `json:"year"`
	Month            int    `json:"month"`
	Name             string `json:"name,omitempty"`
	Notes            string `json:"notes,omitempty"`
	Balanced         bool   `json:"balanced,omitempty"`
	ApplyPreferences bool   `json:"apply_preferences,omitempty"`
}

// NewGenerateScheduleTask constructs the Asynq task. The request id doubles as
// the Asynq task id so duplicate submissions are rejected at enqueue time.
func NewGenerateScheduleTask(payload GenerateSchedulePayload) (*asynq.Task, error) {
	if payload.RequestID == "" {
		return nil, ErrMissingRequestID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGenerateSchedule, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(payload.RequestID),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
	), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	Retention string `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

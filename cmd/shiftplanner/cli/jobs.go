package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/shiftplanner/shiftplanner/internal/schedules"
	"github.com/shiftplanner/shiftplanner/jobs"
)

// GenerateEnqueuer submits generation requests to the queue.
type GenerateEnqueuer interface {
	EnqueueGenerateSchedule(ctx context.Context, payload jobs.GenerateSchedulePayload) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps queue helpers for background generation.
type JobsCLI struct {
	client    GenerateEnqueuer
	inspector QueueInspector
	closers   []func() error
}

// NewJobsCLI wires the helpers to the Redis instance behind opts.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []func() error{inspector.Close, client.Close}}
}

// NewJobsCLIWith builds the helper from existing collaborators.
func NewJobsCLIWith(client GenerateEnqueuer, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// EnqueueGenerate submits a generation request. An empty request id gets a
// random one; resubmitting an id still in the queue yields asynq.ErrTaskIDConflict.
func (c *JobsCLI) EnqueueGenerate(ctx context.Context, requestID string, req schedules.GenerateRequest) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return c.client.EnqueueGenerateSchedule(ctx, jobs.GenerateSchedulePayload{
		RequestID:        requestID,
		OrganizationID:   req.OrganizationID,
		ShiftPatternID:   req.ShiftPatternID,
		Year:             req.Year,
		Month:            req.Month,
		Name:             req.Name,
		Notes:            req.Notes,
		Balanced:         req.Balanced,
		ApplyPreferences: req.ApplyPreferences,
	})
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the default queue metrics.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, fmt.Errorf("inspect queue: %w", err)
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

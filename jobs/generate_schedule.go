package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shiftplanner/shiftplanner/internal/engine"
	jobmetrics "github.com/shiftplanner/shiftplanner/internal/jobs"
	"github.com/shiftplanner/shiftplanner/internal/schedules"
	"github.com/shiftplanner/shiftplanner/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ScheduleGenerator is the service behaviour the job drives.
type ScheduleGenerator interface {
	Generate(ctx context.Context, req schedules.GenerateRequest) (schedules.GenerationResult, error)
}

// IdempotencyPort claims and releases processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// GenerateScheduleJob handles TaskGenerateSchedule.
type GenerateScheduleJob struct {
	Service     ScheduleGenerator
	Idempotency IdempotencyPort
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewGenerateScheduleJob constructs the job handler.
func NewGenerateScheduleJob(service ScheduleGenerator, idem IdempotencyPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *GenerateScheduleJob {
	return &GenerateScheduleJob{Service: service, Idempotency: idem, Logger: logger, Metrics: metrics}
}

// Handle executes one generation request. Permanent failures are wrapped with
// asynq.SkipRetry; transient ones release the idempotency key so the retry
// can claim it again.
func (j *GenerateScheduleJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("generate schedule: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskGenerateSchedule)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload GenerateSchedulePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Warn("decode payload", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}
	if payload.RequestID == "" {
		return fmt.Errorf("%w: %w", ErrMissingRequestID, asynq.SkipRetry)
	}
	logger := j.log().With(slog.String("request_id", payload.RequestID), slog.Int64("organization_id", payload.OrganizationID))

	if j.Idempotency != nil {
		err := j.Idempotency.CheckAndInsert(ctx, payload.RequestID, TaskGenerateSchedule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			logger.Info("generation request already processed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim request: %w", err)
		}
	}

	start := time.Now()
	result, err := j.Service.Generate(ctx, payload.request())
	if err != nil {
		if permanentGenerationError(err) {
			logger.Warn("generation rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if j.Idempotency != nil {
			if derr := j.Idempotency.Delete(context.WithoutCancel(ctx), payload.RequestID, TaskGenerateSchedule); derr != nil {
				logger.Warn("release request key", slog.Any("error", derr))
			}
		}
		logger.Error("generation failed", slog.Any("error", err))
		return err
	}

	logger.Info("generated schedule",
		slog.Int64("schedule_id", result.ID),
		slog.Int("assignments", len(result.Assignments)),
		slog.Int("unfilled", result.Unfilled),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p GenerateSchedulePayload) request() schedules.GenerateRequest {
	return schedules.GenerateRequest{
		OrganizationID:   p.OrganizationID,
		ShiftPatternID:   p.ShiftPatternID,
		Year:             p.Year,
		Month:            p.Month,
		Name:             p.Name,
		Notes:            p.Notes,
		Balanced:         p.Balanced,
		ApplyPreferences: p.ApplyPreferences,
	}
}

// permanentGenerationError reports failures a retry cannot fix.
func permanentGenerationError(err error) bool {
	for _, target := range []error{
		schedules.ErrInvalidRequest,
		schedules.ErrPatternNotFound,
		schedules.ErrNoEmployees,
		schedules.ErrDraftExists,
		engine.ErrMalformedPattern,
		engine.ErrInvalidMonth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (j *GenerateScheduleJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GenerateScheduleJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGenerateSchedule))
	}
	return slog.Default().With(slog.String("job", TaskGenerateSchedule))
}

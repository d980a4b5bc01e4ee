package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftplanner/shiftplanner/internal/engine"
	jobmetrics "github.com/shiftplanner/shiftplanner/internal/jobs"
	"github.com/shiftplanner/shiftplanner/internal/schedules"
	"github.com/shiftplanner/shiftplanner/internal/shared"
)

type stubGenerator struct {
	calls []schedules.GenerateRequest
	err   error
}

func (s *stubGenerator) Generate(_ context.Context, req schedules.GenerateRequest) (schedules.GenerationResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return schedules.GenerationResult{}, s.err
	}
	var result schedules.GenerationResult
	result.ID = 77
	return result, nil
}

type stubIdempotency struct {
	claimed map[string]bool
	deleted []string
	err     error
}

func (s *stubIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if s.err != nil {
		return s.err
	}
	if s.claimed == nil {
		s.claimed = map[string]bool{}
	}
	if s.claimed[module+key] {
		return shared.ErrIdempotencyConflict
	}
	s.claimed[module+key] = true
	return nil
}

func (s *stubIdempotency) Delete(_ context.Context, key, module string) error {
	delete(s.claimed, module+key)
	s.deleted = append(s.deleted, key)
	return nil
}

func newJob(gen *stubGenerator, idem *stubIdempotency) *GenerateScheduleJob {
	return NewGenerateScheduleJob(gen, idem, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func generateTask(t *testing.T, payload GenerateSchedulePayload) *asynq.Task {
	t.Helper()
	task, err := NewGenerateScheduleTask(payload)
	require.NoError(t, err)
	return task
}

func TestNewGenerateScheduleTaskRequiresRequestID(t *testing.T) {
	_, err := NewGenerateScheduleTask(GenerateSchedulePayload{OrganizationID: 1})
	assert.True(t, errors.Is(err, ErrMissingRequestID))

	task := generateTask(t, GenerateSchedulePayload{RequestID: "r1", OrganizationID: 1, ShiftPatternID: 2, Year: 2024, Month: 3, Balanced: true})
	assert.Equal(t, TaskGenerateSchedule, task.Type())
	var decoded GenerateSchedulePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "r1", decoded.RequestID)
	assert.True(t, decoded.Balanced)
}

func TestGenerateScheduleJobRunsOncePerRequest(t *testing.T) {
	gen := &stubGenerator{}
	idem := &stubIdempotency{}
	job := newJob(gen, idem)
	task := generateTask(t, GenerateSchedulePayload{RequestID: "r1", OrganizationID: 1, ShiftPatternID: 2, Year: 2024, Month: 3, ApplyPreferences: true})

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, gen.calls, 1)
	assert.Equal(t, schedules.GenerateRequest{OrganizationID: 1, ShiftPatternID: 2, Year: 2024, Month: 3, ApplyPreferences: true}, gen.calls[0])
}

func TestGenerateScheduleJobSkipsRetryOnPermanentErrors(t *testing.T) {
	for _, permanent := range []error{schedules.ErrNoEmployees, schedules.ErrDraftExists, engine.ErrMalformedPattern, schedules.ErrInvalidRequest} {
		gen := &stubGenerator{err: permanent}
		idem := &stubIdempotency{}
		err := newJob(gen, idem).Handle(context.Background(), generateTask(t, GenerateSchedulePayload{RequestID: "r", OrganizationID: 1, ShiftPatternID: 1, Year: 2024, Month: 1}))
		assert.True(t, errors.Is(err, asynq.SkipRetry), "%v should skip retry", permanent)
		assert.True(t, errors.Is(err, permanent))
		assert.Empty(t, idem.deleted, "permanent failures keep the request key")
	}
}

func TestGenerateScheduleJobReleasesKeyOnTransientError(t *testing.T) {
	gen := &stubGenerator{err: schedules.ErrGenerationInProgress}
	idem := &stubIdempotency{}
	job := newJob(gen, idem)
	task := generateTask(t, GenerateSchedulePayload{RequestID: "r9", OrganizationID: 1, ShiftPatternID: 1, Year: 2024, Month: 1})

	err := job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, []string{"r9"}, idem.deleted)

	gen.err = nil
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, gen.calls, 2)
}

func TestGenerateScheduleJobRejectsBadPayload(t *testing.T) {
	job := newJob(&stubGenerator{}, &stubIdempotency{})

	err := job.Handle(context.Background(), asynq.NewTask(TaskGenerateSchedule, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = job.Handle(context.Background(), asynq.NewTask(TaskGenerateSchedule, []byte(`{"organization_id":1}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.True(t, errors.Is(err, ErrMissingRequestID))
}

type stubCleaner struct {
	retention time.Duration
	removed   int64
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return s.removed, nil
}

func TestIdempotencyCleanupJobUsesPayloadRetention(t *testing.T) {
	store := &stubCleaner{removed: 3}
	job := &IdempotencyCleanupJob{Store: store, DefaultRetention: time.Hour, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, store.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, time.Hour, store.retention)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{"retention":"soon"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHandlerHealth(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Pending)
	assert.Equal(t, 1, body.Failed)

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

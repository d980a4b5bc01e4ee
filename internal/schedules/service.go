package schedules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shiftplanner/shiftplanner/internal/engine"
	"github.com/shiftplanner/shiftplanner/internal/observability"
	"github.com/shiftplanner/shiftplanner/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShiftPattern(ctx context.Context, id int64) (ShiftPattern, error)
	ListEmployees(ctx context.Context, organizationID int64, activeOnly bool) ([]Employee, error)
	ListActiveLeaves(ctx context.Context, organizationID int64, from, to time.Time) ([]engine.Leave, error)
	GetSchedule(ctx context.Context, id int64) (Schedule, error)
	ListSchedules(ctx context.Context, organizationID int64, limit, offset int) ([]Schedule, error)
	ListAssignments(ctx context.Context, scheduleID int64) ([]Assignment, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockPort serialises generation per organization month.
type LockPort interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LockTTL time.Duration
}

// Service generates schedules and manages their lifecycle.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	locker   LockPort
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
	lockTTL  time.Duration
	now      func() time.Time

	// mu guards source, which is not required to be safe for concurrent use.
	mu     sync.Mutex
	source engine.Source
}

// NewService builds Service. audit, locker, metrics and logger may be nil.
func NewService(repo RepositoryPort, audit AuditPort, locker LockPort, metrics *observability.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		locker:   locker,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "schedules")),
		validate: validator.New(),
		lockTTL:  ttl,
		now:      time.Now,
		source:   engine.SystemSource(),
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithSource overrides the allocator's random source.
func (s *Service) WithSource(src engine.Source) {
	if src != nil {
		s.mu.Lock()
		s.source = src
		s.mu.Unlock()
	}
}

// Generate produces and persists a draft schedule for one organization month.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	logger := s.logger.With(
		slog.Int64("organization_id", req.OrganizationID),
		slog.String("month", fmt.Sprintf("%04d-%02d", req.Year, req.Month)),
	)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, req.LockKey(), s.lockTTL)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("schedules: acquire generation lock: %w", err)
		}
		if !ok {
			return GenerationResult{}, ErrGenerationInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release generation lock", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	result, err := s.generate(ctx, req)
	s.metrics.ObserveGeneration(req.Strategy().String(), err, time.Since(start), len(result.Assignments), result.Unfilled)
	if err != nil {
		logger.Error("generate schedule", slog.Any("error", err))
		return GenerationResult{}, err
	}

	meta := map[string]any{
		"year":        req.Year,
		"month":       req.Month,
		"assignments": len(result.Assignments),
		"unfilled":    result.Unfilled,
		"strategy":    req.Strategy().String(),
	}
	if result.Optimization != nil {
		s.metrics.AddSwaps(result.Optimization.Swaps)
		meta["swaps"] = result.Optimization.Swaps
	}
	s.record(ctx, "schedule.generate", result.ID, meta)
	logger.Info("schedule generated",
		slog.Int64("schedule_id", result.ID),
		slog.String("generation_id", result.GenerationID.String()),
		slog.Int("assignments", len(result.Assignments)),
		slog.Int("unfilled", result.Unfilled),
	)
	return result, nil
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
	month := time.Month(req.Month)
	first := engine.Date(req.Year, month, 1)
	last := first.AddDate(0, 1, -1)

	var (
		pattern ShiftPattern
		roster  []Employee
		leaves  []engine.Leave
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.repo.GetShiftPattern(gctx, req.ShiftPatternID)
		if err != nil {
			return err
		}
		pattern = p
		return nil
	})
	g.Go(func() error {
		employees, err := s.repo.ListEmployees(gctx, req.OrganizationID, true)
		if err != nil {
			return fmt.Errorf("schedules: list employees: %w", err)
		}
		roster = employees
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.ListActiveLeaves(gctx, req.OrganizationID, first, last)
		if err != nil {
			return fmt.Errorf("schedules: list leaves: %w", err)
		}
		leaves = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return GenerationResult{}, err
	}
	if pattern.OrganizationID != req.OrganizationID || !pattern.IsActive {
		return GenerationResult{}, ErrPatternNotFound
	}
	if len(roster) == 0 {
		return GenerationResult{}, ErrNoEmployees
	}
	rotation, err := pattern.Pattern()
	if err != nil {
		return GenerationResult{}, err
	}
	employees := s.engineEmployees(roster)

	s.mu.Lock()
	plan, err := engine.GenerateMonth(engine.MonthInput{
		Year:      req.Year,
		Month:     month,
		Pattern:   rotation,
		Employees: employees,
		Leaves:    engine.NewLeaveIndex(leaves),
		Source:    s.source,
		Strategy:  req.Strategy(),
	})
	s.mu.Unlock()
	if err != nil {
		return GenerationResult{}, err
	}

	planned := plan.Assignments
	var optimization *engine.OptimizeResult
	if req.ApplyPreferences {
		res := engine.Optimize(planned, employees)
		optimization = &res
		planned = res.Assignments
	}

	generationID, err := uuid.NewRandom()
	if err != nil {
		return GenerationResult{}, fmt.Errorf("schedules: generation id: %w", err)
	}
	header := Schedule{
		OrganizationID: req.OrganizationID,
		ShiftPatternID: pattern.ID,
		Name:           req.ScheduleName(),
		Year:           req.Year,
		Month:          month,
		Status:         StatusDraft,
		Notes:          req.Notes,
		GenerationID:   generationID,
		CreatedAt:      s.now().UTC(),
	}

	var rows []Assignment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.DraftExists(ctx, req.OrganizationID, req.Year, month)
		if err != nil {
			return err
		}
		if exists {
			return ErrDraftExists
		}
		header, err = tx.InsertSchedule(ctx, header)
		if err != nil {
			return err
		}
		rows, err = tx.InsertAssignments(ctx, header.ID, planned)
		return err
	})
	if err != nil {
		return GenerationResult{}, err
	}

	return GenerationResult{
		ScheduleWithAssignments: ScheduleWithAssignments{Schedule: header, Assignments: rows},
		Days:                    plan.Days,
		Unfilled:                plan.UnfilledSlots(),
		Optimization:            optimization,
	}, nil
}

// Finalize moves a draft schedule to finalized.
func (s *Service) Finalize(ctx context.Context, id int64) (Schedule, error) {
	return s.transition(ctx, id, StatusFinalized)
}

// Archive moves a draft or finalized schedule to archived.
func (s *Service) Archive(ctx context.Context, id int64) (Schedule, error) {
	return s.transition(ctx, id, StatusArchived)
}

func (s *Service) transition(ctx context.Context, id int64, target Status) (Schedule, error) {
	var updated Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return err
		}
		if !schedule.Status.CanTransition(target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, schedule.Status, target)
		}
		now := s.now().UTC()
		if err := tx.UpdateScheduleStatus(ctx, id, target, now); err != nil {
			return err
		}
		schedule.Status = target
		schedule.UpdatedAt = now
		updated = schedule
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.metrics.ObserveTransition(string(target))
	s.record(ctx, "schedule."+string(target), id, map[string]any{"status": string(target)})
	return updated, nil
}

// OptimizePreferences runs the preference optimizer over a draft schedule and
// persists the changed positions.
func (s *Service) OptimizePreferences(ctx context.Context, id int64) (engine.OptimizeResult, error) {
	schedule, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return engine.OptimizeResult{}, err
	}
	roster, err := s.repo.ListEmployees(ctx, schedule.OrganizationID, false)
	if err != nil {
		return engine.OptimizeResult{}, fmt.Errorf("schedules: list employees: %w", err)
	}
	employees := s.engineEmployees(roster)

	var result engine.OptimizeResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != StatusDraft {
			return fmt.Errorf("%w: optimize requires draft, schedule is %s", ErrInvalidTransition, locked.Status)
		}
		rows, err := tx.ListAssignmentsForUpdate(ctx, id)
		if err != nil {
			return err
		}
		planned := make([]engine.PlannedAssignment, 0, len(rows))
		for _, row := range rows {
			planned = append(planned, row.planned())
		}
		result = engine.Optimize(planned, employees)
		return tx.UpdateShiftPositions(ctx, result.Changed(planned))
	})
	if err != nil {
		return engine.OptimizeResult{}, err
	}
	s.metrics.AddSwaps(result.Swaps)
	s.record(ctx, "schedule.optimize", id, map[string]any{
		"swaps":        result.Swaps,
		"score_before": result.ScoreBefore,
		"score_after":  result.ScoreAfter,
	})
	return result, nil
}

// OverrideAssignment applies a manual edit and marks the row as overridden.
func (s *Service) OverrideAssignment(ctx context.Context, in OverrideInput) (Assignment, error) {
	if err := s.validate.Struct(in); err != nil {
		return Assignment{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	var updated Assignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.LockSchedule(ctx, in.ScheduleID)
		if err != nil {
			return err
		}
		if schedule.Status == StatusArchived {
			return fmt.Errorf("%w: schedule is archived", ErrInvalidTransition)
		}
		a, err := tx.LockAssignment(ctx, in.ScheduleID, in.AssignmentID)
		if err != nil {
			return err
		}
		if in.EmployeeID != nil && *in.EmployeeID != a.EmployeeID {
			taken, err := tx.EmployeeAssignedOn(ctx, in.ScheduleID, *in.EmployeeID, a.Date, a.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrAssignmentConflict
			}
			a.EmployeeID = *in.EmployeeID
		}
		if in.ShiftPosition != nil && *in.ShiftPosition != a.ShiftPosition {
			pattern, err := s.repo.GetShiftPattern(ctx, schedule.ShiftPatternID)
			if err != nil {
				return err
			}
			if *in.ShiftPosition > pattern.ShiftsPerDay {
				return fmt.Errorf("%w: shift position %d exceeds %d shifts per day", ErrInvalidRequest, *in.ShiftPosition, pattern.ShiftsPerDay)
			}
			taken, err := tx.PositionTakenOn(ctx, in.ScheduleID, a.Date, *in.ShiftPosition, a.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: position %d already filled on %s", ErrAssignmentConflict, *in.ShiftPosition, a.Date.Format(time.DateOnly))
			}
			a.ShiftPosition = *in.ShiftPosition
		}
		if in.Notes != nil {
			a.Notes = *in.Notes
		}
		a.IsManualOverride = true
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	s.record(ctx, "assignment.override", in.ScheduleID, map[string]any{
		"assignment_id":  updated.ID,
		"employee_id":    updated.EmployeeID,
		"shift_position": updated.ShiftPosition,
	})
	return updated, nil
}

// Get returns a schedule with its assignments.
func (s *Service) Get(ctx context.Context, id int64) (ScheduleWithAssignments, error) {
	schedule, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return ScheduleWithAssignments{}, err
	}
	rows, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return ScheduleWithAssignments{}, err
	}
	return ScheduleWithAssignments{Schedule: schedule, Assignments: rows}, nil
}

// ListByOrganization pages an organization's schedules.
func (s *Service) ListByOrganization(ctx context.Context, organizationID int64, limit, offset int) ([]Schedule, error) {
	if organizationID <= 0 {
		return nil, fmt.Errorf("%w: organization id required", ErrInvalidRequest)
	}
	page := shared.NewPage(limit, offset)
	return s.repo.ListSchedules(ctx, organizationID, page.Limit, page.Offset)
}

// Statistics summarises assignments per employee and position.
func (s *Service) Statistics(ctx context.Context, id int64) (Statistics, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return Statistics{}, err
	}
	roster, err := s.repo.ListEmployees(ctx, schedule.OrganizationID, false)
	if err != nil {
		return Statistics{}, fmt.Errorf("schedules: list employees: %w", err)
	}
	return BuildStatistics(id, schedule.Assignments, s.engineEmployees(roster)), nil
}

// engineEmployees decodes preferences, treating undecodable JSON as none.
func (s *Service) engineEmployees(roster []Employee) []engine.Employee {
	out := make([]engine.Employee, 0, len(roster))
	for _, e := range roster {
		prefs, err := engine.ParsePreferences(e.Preferences)
		if err != nil {
			s.logger.Warn("ignoring employee preferences", slog.Int64("employee_id", e.ID), slog.Any("error", err))
			prefs = engine.Preferences{}
		}
		out = append(out, engine.Employee{
			ID:             e.ID,
			OrganizationID: e.OrganizationID,
			Name:           e.Name,
			IsActive:       e.IsActive,
			Preferences:    prefs,
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, action string, scheduleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "schedule",
		EntityID: strconv.FormatInt(scheduleID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) || errors.Is(err, ErrAssignmentNotFound) || errors.Is(err, ErrPatternNotFound)
}

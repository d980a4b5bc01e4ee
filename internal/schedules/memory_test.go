package schedules

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shiftplanner/shiftplanner/internal/engine"
	"github.com/shiftplanner/shiftplanner/internal/shared"
)

// memoryRepo is an in-memory RepositoryPort. WithTx restores a snapshot when
// fn fails so tests can observe rollback.
type memoryRepo struct {
	mu          sync.Mutex
	patterns    map[int64]ShiftPattern
	employees   []Employee
	leaves      []engine.Leave
	schedules   map[int64]Schedule
	assignments map[int64]Assignment
	nextID      int64

	failInsertAssignments error
	txCount               int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		patterns:    map[int64]ShiftPattern{},
		schedules:   map[int64]Schedule{},
		assignments: map[int64]Assignment{},
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	schedules := maps.Clone(r.schedules)
	assignments := maps.Clone(r.assignments)
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.schedules = schedules
		r.assignments = assignments
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) GetShiftPattern(_ context.Context, id int64) (ShiftPattern, error) {
	p, ok := r.patterns[id]
	if !ok {
		return ShiftPattern{}, ErrPatternNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListEmployees(_ context.Context, organizationID int64, activeOnly bool) ([]Employee, error) {
	out := make([]Employee, 0)
	for _, e := range r.employees {
		if e.OrganizationID != organizationID || (activeOnly && !e.IsActive) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) ListActiveLeaves(_ context.Context, organizationID int64, from, to time.Time) ([]engine.Leave, error) {
	out := make([]engine.Leave, 0)
	for _, l := range r.leaves {
		if l.IsActive && !l.StartDate.After(to) && !l.EndDate.Before(from) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetSchedule(_ context.Context, id int64) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return s, nil
}

func (r *memoryRepo) ListSchedules(_ context.Context, organizationID int64, limit, offset int) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Schedule, 0)
	for _, s := range r.schedules {
		if s.OrganizationID == organizationID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int { return int(b.ID - a.ID) })
	if offset >= len(out) {
		return []Schedule{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) ListAssignments(_ context.Context, scheduleID int64) ([]Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignmentsOf(scheduleID), nil
}

func (r *memoryRepo) assignmentsOf(scheduleID int64) []Assignment {
	out := make([]Assignment, 0)
	for _, a := range r.assignments {
		if a.ScheduleID == scheduleID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Assignment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.ShiftPosition != b.ShiftPosition {
			return a.ShiftPosition - b.ShiftPosition
		}
		return int(a.EmployeeID - b.EmployeeID)
	})
	return out
}

func (tx *memoryTx) DraftExists(_ context.Context, organizationID int64, year int, month time.Month) (bool, error) {
	for _, s := range tx.repo.schedules {
		if s.OrganizationID == organizationID && s.Year == year && s.Month == month && s.Status == StatusDraft {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertSchedule(_ context.Context, s Schedule) (Schedule, error) {
	s.ID = tx.repo.id()
	s.UpdatedAt = s.CreatedAt
	tx.repo.schedules[s.ID] = s
	return s, nil
}

func (tx *memoryTx) InsertAssignments(_ context.Context, scheduleID int64, planned []engine.PlannedAssignment) ([]Assignment, error) {
	out := make([]Assignment, 0, len(planned))
	for i, p := range planned {
		if tx.repo.failInsertAssignments != nil && i == len(planned)/2 {
			return nil, tx.repo.failInsertAssignments
		}
		a := Assignment{ID: tx.repo.id(), ScheduleID: scheduleID, EmployeeID: p.EmployeeID, Date: p.Date, ShiftPosition: p.ShiftPosition, IsManualOverride: p.IsManualOverride}
		tx.repo.assignments[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

func (tx *memoryTx) LockSchedule(_ context.Context, id int64) (Schedule, error) {
	s, ok := tx.repo.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return s, nil
}

func (tx *memoryTx) UpdateScheduleStatus(_ context.Context, id int64, status Status, at time.Time) error {
	s, ok := tx.repo.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	s.Status = status
	s.UpdatedAt = at
	tx.repo.schedules[id] = s
	return nil
}

func (tx *memoryTx) ListAssignmentsForUpdate(_ context.Context, scheduleID int64) ([]Assignment, error) {
	return tx.repo.assignmentsOf(scheduleID), nil
}

func (tx *memoryTx) LockAssignment(_ context.Context, scheduleID, assignmentID int64) (Assignment, error) {
	a, ok := tx.repo.assignments[assignmentID]
	if !ok || a.ScheduleID != scheduleID {
		return Assignment{}, ErrAssignmentNotFound
	}
	return a, nil
}

func (tx *memoryTx) EmployeeAssignedOn(_ context.Context, scheduleID, employeeID int64, date time.Time, excludeID int64) (bool, error) {
	for _, a := range tx.repo.assignments {
		if a.ScheduleID == scheduleID && a.EmployeeID == employeeID && a.Date.Equal(date) && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) PositionTakenOn(_ context.Context, scheduleID int64, date time.Time, position int, excludeID int64) (bool, error) {
	for _, a := range tx.repo.assignments {
		if a.ScheduleID == scheduleID && a.Date.Equal(date) && a.ShiftPosition == position && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) UpdateAssignment(_ context.Context, a Assignment) error {
	if _, ok := tx.repo.assignments[a.ID]; !ok {
		return ErrAssignmentNotFound
	}
	tx.repo.assignments[a.ID] = a
	return nil
}

func (tx *memoryTx) UpdateShiftPositions(_ context.Context, changed []engine.PlannedAssignment) error {
	for _, c := range changed {
		a, ok := tx.repo.assignments[c.ID]
		if !ok {
			return ErrAssignmentNotFound
		}
		if a.IsManualOverride {
			continue
		}
		a.ShiftPosition = c.ShiftPosition
		tx.repo.assignments[c.ID] = a
	}
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

// heldLocker refuses keys listed in held and otherwise grants locks.
type heldLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	err      error
}

func (l *heldLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

var errInjected = errors.New("injected failure")

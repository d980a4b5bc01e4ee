package schedules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftplanner/shiftplanner/internal/engine"
)

const (
	uniqueViolation              = "23505"
	draftMonthConstraint         = "ux_schedules_draft_month"
	assignmentDateConstraint     = "ux_assignments_schedule_date_employee"
	assignmentPositionConstraint = "ux_assignments_schedule_date_position"
)

// TxRepository exposes the operations that must run inside one transaction.
type TxRepository interface {
	DraftExists(ctx context.Context, organizationID int64, year int, month time.Month) (bool, error)
	InsertSchedule(ctx context.Context, schedule Schedule) (Schedule, error)
	InsertAssignments(ctx context.Context, scheduleID int64, planned []engine.PlannedAssignment) ([]Assignment, error)
	LockSchedule(ctx context.Context, id int64) (Schedule, error)
	UpdateScheduleStatus(ctx context.Context, id int64, status Status, at time.Time) error
	ListAssignmentsForUpdate(ctx context.Context, scheduleID int64) ([]Assignment, error)
	LockAssignment(ctx context.Context, scheduleID, assignmentID int64) (Assignment, error)
	EmployeeAssignedOn(ctx context.Context, scheduleID, employeeID int64, date time.Time, excludeID int64) (bool, error)
	PositionTakenOn(ctx context.Context, scheduleID int64, date time.Time, position int, excludeID int64) (bool, error)
	UpdateAssignment(ctx context.Context, assignment Assignment) error
	UpdateShiftPositions(ctx context.Context, changed []engine.PlannedAssignment) error
}

// Repository persists schedules in PostgreSQL and reads the roster tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("schedules: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return mapUniqueViolation(tx.Commit(ctx))
}

// GetShiftPattern loads an active pattern.
func (r *Repository) GetShiftPattern(ctx context.Context, id int64) (ShiftPattern, error) {
	const query = `
SELECT id, organization_id, name, pattern_data, shifts_per_day, is_active
FROM shift_patterns
WHERE id = $1 AND is_active`
	var p ShiftPattern
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.PatternData, &p.ShiftsPerDay, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShiftPattern{}, ErrPatternNotFound
		}
		return ShiftPattern{}, err
	}
	return p, nil
}

// ListEmployees returns the organization roster ordered by id.
func (r *Repository) ListEmployees(ctx context.Context, organizationID int64, activeOnly bool) ([]Employee, error) {
	const query = `
SELECT id, organization_id, name, is_active, preferences
FROM employees
WHERE organization_id = $1 AND (is_active OR NOT $2)
ORDER BY id`
	rows, err := r.pool.Query(ctx, query, organizationID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]Employee, 0)
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Name, &e.IsActive, &e.Preferences); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// ListActiveLeaves returns active leaves of the organization overlapping [from, to].
func (r *Repository) ListActiveLeaves(ctx context.Context, organizationID int64, from, to time.Time) ([]engine.Leave, error) {
	const query = `
SELECT l.id, l.employee_id, l.start_date, l.end_date, l.is_active
FROM leaves l
JOIN employees e ON e.id = l.employee_id
WHERE e.organization_id = $1 AND l.is_active
  AND l.start_date <= $3 AND l.end_date >= $2
ORDER BY l.employee_id, l.start_date`
	rows, err := r.pool.Query(ctx, query, organizationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaves := make([]engine.Leave, 0)
	for rows.Next() {
		var l engine.Leave
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.StartDate, &l.EndDate, &l.IsActive); err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

const scheduleColumns = `id, organization_id, COALESCE(shift_pattern_id, 0), name, year, month, status, notes, generation_id, created_at, updated_at`

// GetSchedule loads a schedule header.
func (r *Repository) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
}

// ListSchedules pages schedules of an organization, newest month first.
func (r *Repository) ListSchedules(ctx context.Context, organizationID int64, limit, offset int) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules
WHERE organization_id = $1
ORDER BY year DESC, month DESC, id DESC
LIMIT $2 OFFSET $3`, organizationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

const assignmentColumns = `id, schedule_id, employee_id, date, shift_position, is_manual_override, notes`

// ListAssignments returns the schedule rows ordered by date then position.
func (r *Repository) ListAssignments(ctx context.Context, scheduleID int64) ([]Assignment, error) {
	return queryAssignments(ctx, r.pool, `SELECT `+assignmentColumns+` FROM assignments
WHERE schedule_id = $1
ORDER BY date, shift_position, employee_id`, scheduleID)
}

func (r *txRepo) DraftExists(ctx context.Context, organizationID int64, year int, month time.Month) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM schedules WHERE organization_id = $1 AND year = $2 AND month = $3 AND status = 'draft'
)`, organizationID, year, int(month)).Scan(&exists)
	return exists, err
}

func (r *txRepo) InsertSchedule(ctx context.Context, s Schedule) (Schedule, error) {
	const query = `
INSERT INTO schedules (organization_id, shift_pattern_id, name, year, month, status, notes, generation_id, created_at, updated_at)
VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8, $9, $9)
RETURNING id`
	err := r.tx.QueryRow(ctx, query, s.OrganizationID, s.ShiftPatternID, s.Name, s.Year, int(s.Month), string(s.Status), s.Notes, s.GenerationID, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return Schedule{}, mapUniqueViolation(err)
	}
	s.UpdatedAt = s.CreatedAt
	return s, nil
}

func (r *txRepo) InsertAssignments(ctx context.Context, scheduleID int64, planned []engine.PlannedAssignment) ([]Assignment, error) {
	if len(planned) == 0 {
		return []Assignment{}, nil
	}
	const query = `
INSERT INTO assignments (schedule_id, employee_id, date, shift_position, is_manual_override)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	batch := &pgx.Batch{}
	for _, p := range planned {
		batch.Queue(query, scheduleID, p.EmployeeID, p.Date, p.ShiftPosition, p.IsManualOverride)
	}
	results := r.tx.SendBatch(ctx, batch)
	out := make([]Assignment, 0, len(planned))
	for _, p := range planned {
		a := Assignment{ScheduleID: scheduleID, EmployeeID: p.EmployeeID, Date: p.Date, ShiftPosition: p.ShiftPosition, IsManualOverride: p.IsManualOverride}
		if err := results.QueryRow().Scan(&a.ID); err != nil {
			_ = results.Close()
			return nil, mapUniqueViolation(err)
		}
		out = append(out, a)
	}
	if err := results.Close(); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return out, nil
}

func (r *txRepo) LockSchedule(ctx context.Context, id int64) (Schedule, error) {
	return scanSchedule(r.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateScheduleStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE schedules SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *txRepo) ListAssignmentsForUpdate(ctx context.Context, scheduleID int64) ([]Assignment, error) {
	return queryAssignments(ctx, r.tx, `SELECT `+assignmentColumns+` FROM assignments
WHERE schedule_id = $1
ORDER BY date, shift_position, employee_id
FOR UPDATE`, scheduleID)
}

func (r *txRepo) LockAssignment(ctx context.Context, scheduleID, assignmentID int64) (Assignment, error) {
	rows, err := queryAssignments(ctx, r.tx, `SELECT `+assignmentColumns+` FROM assignments
WHERE schedule_id = $1 AND id = $2
FOR UPDATE`, scheduleID, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if len(rows) == 0 {
		return Assignment{}, ErrAssignmentNotFound
	}
	return rows[0], nil
}

func (r *txRepo) EmployeeAssignedOn(ctx context.Context, scheduleID, employeeID int64, date time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM assignments WHERE schedule_id = $1 AND employee_id = $2 AND date = $3 AND id <> $4
)`, scheduleID, employeeID, date, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepo) PositionTakenOn(ctx context.Context, scheduleID int64, date time.Time, position int, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM assignments WHERE schedule_id = $1 AND date = $2 AND shift_position = $3 AND id <> $4
)`, scheduleID, date, position, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepo) UpdateAssignment(ctx context.Context, a Assignment) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE assignments
SET employee_id = $2, shift_position = $3, is_manual_override = $4, notes = $5, updated_at = NOW()
WHERE id = $1`, a.ID, a.EmployeeID, a.ShiftPosition, a.IsManualOverride, a.Notes)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *txRepo) UpdateShiftPositions(ctx context.Context, changed []engine.PlannedAssignment) error {
	if len(changed) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range changed {
		batch.Queue(`UPDATE assignments SET shift_position = $2, updated_at = NOW() WHERE id = $1 AND NOT is_manual_override`, a.ID, a.ShiftPosition)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range changed {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var (
		s      Schedule
		month  int
		status string
		genID  uuid.UUID
	)
	err := row.Scan(&s.ID, &s.OrganizationID, &s.ShiftPatternID, &s.Name, &s.Year, &month, &status, &s.Notes, &genID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	s.Month = time.Month(month)
	s.Status = Status(status)
	s.GenerationID = genID
	return s, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAssignments(ctx context.Context, q querier, query string, args ...any) ([]Assignment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Assignment, 0)
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.EmployeeID, &a.Date, &a.ShiftPosition, &a.IsManualOverride, &a.Notes); err != nil {
			return nil, err
		}
		a.Date = engine.DateOf(a.Date)
		out = append(out, a)
	}
	return out, rows.Err()
}

// mapUniqueViolation turns the known unique constraints into domain errors.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case draftMonthConstraint:
			return fmt.Errorf("%w: %s", ErrDraftExists, pgErr.Detail)
		case assignmentDateConstraint, assignmentPositionConstraint:
			return fmt.Errorf("%w: %s", ErrAssignmentConflict, pgErr.Detail)
		}
	}
	return err
}

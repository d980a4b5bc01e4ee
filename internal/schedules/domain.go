package schedules

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftplanner/shiftplanner/internal/engine"
)

// Status captures the lifecycle of a schedule.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusArchived  Status = "archived"
)

var (
	ErrInvalidRequest       = errors.New("schedules: invalid request")
	ErrInvalidTransition    = errors.New("schedules: invalid status transition")
	ErrDraftExists          = errors.New("schedules: draft already exists for month")
	ErrGenerationInProgress = errors.New("schedules: generation already in progress")
	ErrNoEmployees          = errors.New("schedules: no active employees")
	ErrPatternNotFound      = errors.New("schedules: shift pattern not found")
	ErrScheduleNotFound     = errors.New("schedules: schedule not found")
	ErrAssignmentNotFound   = errors.New("schedules: assignment not found")
	ErrAssignmentConflict   = errors.New("schedules: assignment conflicts with another on date")
)

// CanTransition reports whether a schedule may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusFinalized || next == StatusArchived
	case StatusFinalized:
		return next == StatusArchived
	default:
		return false
	}
}

// ShiftPattern is the stored rotation definition owned by an organization.
type ShiftPattern struct {
	ID             int64
	OrganizationID int64
	Name           string
	PatternData    []byte
	ShiftsPerDay   int
	IsActive       bool
}

// Pattern decodes the stored definition, failing closed on malformed data.
func (p ShiftPattern) Pattern() (engine.Pattern, error) {
	pattern, err := engine.ParsePatternData(p.PatternData, p.ShiftsPerDay)
	if err != nil {
		return engine.Pattern{}, fmt.Errorf("shift pattern %d: %w", p.ID, err)
	}
	return pattern, nil
}

// Employee is the roster row as stored; Preferences holds the raw JSON column.
type Employee struct {
	ID             int64
	OrganizationID int64
	Name           string
	IsActive       bool
	Preferences    []byte
}

// Schedule is a month of assignments for one organization.
type Schedule struct {
	ID             int64
	OrganizationID int64
	ShiftPatternID int64
	Name           string
	Year           int
	Month          time.Month
	Status         Status
	Notes          string
	GenerationID   uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Assignment places one employee on one shift position for a date.
type Assignment struct {
	ID               int64
	ScheduleID       int64
	EmployeeID       int64
	Date             time.Time
	ShiftPosition    int
	IsManualOverride bool
	Notes            string
}

func (a Assignment) planned() engine.PlannedAssignment {
	return engine.PlannedAssignment{
		ID:               a.ID,
		EmployeeID:       a.EmployeeID,
		Date:             a.Date,
		ShiftPosition:    a.ShiftPosition,
		IsManualOverride: a.IsManualOverride,
	}
}

// ScheduleWithAssignments bundles a schedule and its rows.
type ScheduleWithAssignments struct {
	Schedule
	Assignments []Assignment
}

// GenerateRequest asks for one month to be generated.
type GenerateRequest struct {
	OrganizationID   int64  `json:"organization_id" validate:"required,gt=0"`
	ShiftPatternID   int64  `json:"shift_pattern_id" validate:"required,gt=0"`
	Year             int    `json:"year" validate:"gte=1,lte=9999"`
	Month            int    `json:"month" validate:"gte=1,lte=12"`
	Name             string `json:"name" validate:"omitempty,max=255"`
	Notes            string `json:"notes" validate:"omitempty,max=2000"`
	Balanced         bool   `json:"balanced"`
	ApplyPreferences bool   `json:"apply_preferences"`
}

// ScheduleName returns the requested name or the default for the month.
func (r GenerateRequest) ScheduleName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("Schedule %d-%02d", r.Year, r.Month)
}

// Strategy maps the request flag to an allocator strategy.
func (r GenerateRequest) Strategy() engine.Strategy {
	if r.Balanced {
		return engine.StrategyBalanced
	}
	return engine.StrategyUniform
}

// LockKey scopes generation serialisation to an organization month.
func (r GenerateRequest) LockKey() string {
	return fmt.Sprintf("generate:%d:%04d-%02d", r.OrganizationID, r.Year, r.Month)
}

// GenerationResult is returned by Generate.
type GenerationResult struct {
	ScheduleWithAssignments
	Days         []engine.DayReport
	Unfilled     int
	Optimization *engine.OptimizeResult
}

// OverrideInput describes a manual edit of one assignment. Nil fields are left unchanged.
type OverrideInput struct {
	ScheduleID    int64   `validate:"required,gt=0"`
	AssignmentID  int64   `validate:"required,gt=0"`
	EmployeeID    *int64  `validate:"omitempty,gt=0"`
	ShiftPosition *int    `validate:"omitempty,gte=1"`
	Notes         *string `validate:"omitempty,max=2000"`
}

// EmployeeStats summarises one employee's load in a schedule.
type EmployeeStats struct {
	EmployeeID       int64
	Name             string
	TotalShifts      int
	ShiftsByPosition map[int]int
	PreferredShifts  int
}

// Statistics summarises a schedule.
type Statistics struct {
	ScheduleID       int64
	TotalAssignments int
	ManualOverrides  int
	Employees        []EmployeeStats
}

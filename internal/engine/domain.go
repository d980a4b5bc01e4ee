package engine

import (
	"encoding/json"
	"slices"
	"time"
)

// Employee is the rostering view of an employee supplied by the CRUD layer.
type Employee struct {
	ID             int64
	OrganizationID int64
	Name           string
	IsActive       bool
	Preferences    Preferences
}

// Preferences holds the engine-relevant part of an employee's preference document.
type Preferences struct {
	PreferredShifts []int `json:"preferred_shifts"`
}

// Prefers reports whether position is one of the preferred shift positions.
func (p Preferences) Prefers(position int) bool {
	return slices.Contains(p.PreferredShifts, position)
}

// ParsePreferences decodes the employees.preferences JSON document. An empty
// document yields zero preferences.
func ParsePreferences(raw []byte) (Preferences, error) {
	var prefs Preferences
	if len(raw) == 0 || string(raw) == "null" {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// Leave is an inclusive absence range for one employee.
type Leave struct {
	ID         int64
	EmployeeID int64
	StartDate  time.Time
	EndDate    time.Time
	IsActive   bool
}

// Covers reports whether the leave is active and includes date.
func (l Leave) Covers(date time.Time) bool {
	if !l.IsActive {
		return false
	}
	day := DateOf(date)
	return !day.Before(DateOf(l.StartDate)) && !day.After(DateOf(l.EndDate))
}

// PlannedAssignment is one (employee, date, shift position) produced by the
// generator. ID and IsManualOverride are carried through when the optimizer runs
// over persisted assignments.
type PlannedAssignment struct {
	ID               int64
	EmployeeID       int64
	Date             time.Time
	ShiftPosition    int
	IsManualOverride bool
}

// Date builds a calendar date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf strips the clock component, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

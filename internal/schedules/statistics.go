package schedules

import (
	"cmp"
	"slices"

	"github.com/shiftplanner/shiftplanner/internal/engine"
)

// BuildStatistics aggregates per-employee totals for a schedule. Employees
// with no assignments are omitted; unknown employees keep an empty name.
func BuildStatistics(scheduleID int64, assignments []Assignment, roster []engine.Employee) Statistics {
	byID := make(map[int64]engine.Employee, len(roster))
	for _, e := range roster {
		byID[e.ID] = e
	}

	stats := Statistics{ScheduleID: scheduleID, TotalAssignments: len(assignments)}
	perEmployee := make(map[int64]*EmployeeStats)
	for _, a := range assignments {
		if a.IsManualOverride {
			stats.ManualOverrides++
		}
		es, ok := perEmployee[a.EmployeeID]
		if !ok {
			es = &EmployeeStats{
				EmployeeID:       a.EmployeeID,
				Name:             byID[a.EmployeeID].Name,
				ShiftsByPosition: map[int]int{},
			}
			perEmployee[a.EmployeeID] = es
		}
		es.TotalShifts++
		es.ShiftsByPosition[a.ShiftPosition]++
		if byID[a.EmployeeID].Preferences.Prefers(a.ShiftPosition) {
			es.PreferredShifts++
		}
	}

	stats.Employees = make([]EmployeeStats, 0, len(perEmployee))
	for _, es := range perEmployee {
		stats.Employees = append(stats.Employees, *es)
	}
	slices.SortFunc(stats.Employees, func(a, b EmployeeStats) int {
		return cmp.Compare(a.EmployeeID, b.EmployeeID)
	})
	return stats
}

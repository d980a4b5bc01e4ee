package engine

import (
	"slices"
	"time"
)

// OptimizeResult reports the outcome of a preference optimisation run.
type OptimizeResult struct {
	Assignments []PlannedAssignment
	Swaps       int
	Passes      int
	ScoreBefore int
	ScoreAfter  int
}

// Changed returns the assignments whose shift position differs from before.
// before must be the slice passed to Optimize; rows beyond the shorter of the
// two slices are ignored.
func (r OptimizeResult) Changed(before []PlannedAssignment) []PlannedAssignment {
	n := min(len(before), len(r.Assignments))
	changed := make([]PlannedAssignment, 0)
	for i := range n {
		if before[i].ShiftPosition != r.Assignments[i].ShiftPosition {
			changed = append(changed, r.Assignments[i])
		}
	}
	return changed
}

// PreferenceIndex maps employee IDs to their preferences.
func PreferenceIndex(employees []Employee) map[int64]Preferences {
	prefs := make(map[int64]Preferences, len(employees))
	for _, employee := range employees {
		if len(employee.Preferences.PreferredShifts) == 0 {
			continue
		}
		prefs[employee.ID] = employee.Preferences
	}
	return prefs
}

// Score counts assignments whose position is preferred by their employee.
func Score(assignments []PlannedAssignment, prefs map[int64]Preferences) int {
	total := 0
	for _, a := range assignments {
		if prefs[a.EmployeeID].Prefers(a.ShiftPosition) {
			total++
		}
	}
	return total
}

// Optimize swaps shift positions between assignments sharing a date whenever
// the swap strictly raises the pair's preference score, repeating passes until
// no improving swap remains. Employees keep their dates, every date keeps its
// set of positions and manual overrides are left alone. The input is not mutated.
func Optimize(assignments []PlannedAssignment, employees []Employee) OptimizeResult {
	prefs := PreferenceIndex(employees)
	out := slices.Clone(assignments)
	result := OptimizeResult{ScoreBefore: Score(out, prefs)}

	groups := groupByDate(out)
	for {
		result.Passes++
		improved := false
		for _, group := range groups {
			for _, i := range group {
				a := &out[i]
				if a.IsManualOverride || prefs[a.EmployeeID].Prefers(a.ShiftPosition) {
					continue
				}
				for _, j := range group {
					if i == j {
						continue
					}
					b := &out[j]
					if b.IsManualOverride || pairGain(*a, *b, prefs) <= 0 {
						continue
					}
					a.ShiftPosition, b.ShiftPosition = b.ShiftPosition, a.ShiftPosition
					result.Swaps++
					improved = true
					if prefs[a.EmployeeID].Prefers(a.ShiftPosition) {
						break
					}
				}
			}
		}
		if !improved {
			break
		}
	}

	result.Assignments = out
	result.ScoreAfter = Score(out, prefs)
	return result
}

func pairGain(a, b PlannedAssignment, prefs map[int64]Preferences) int {
	current := boolScore(prefs[a.EmployeeID].Prefers(a.ShiftPosition)) + boolScore(prefs[b.EmployeeID].Prefers(b.ShiftPosition))
	swapped := boolScore(prefs[a.EmployeeID].Prefers(b.ShiftPosition)) + boolScore(prefs[b.EmployeeID].Prefers(a.ShiftPosition))
	return swapped - current
}

func boolScore(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

// groupByDate returns index groups per date, dates ascending and each group in
// (position, employee) order so passes are deterministic.
func groupByDate(assignments []PlannedAssignment) [][]int {
	byDate := make(map[time.Time][]int)
	dates := make([]time.Time, 0)
	for i, a := range assignments {
		day := DateOf(a.Date)
		if _, ok := byDate[day]; !ok {
			dates = append(dates, day)
		}
		byDate[day] = append(byDate[day], i)
	}
	slices.SortFunc(dates, func(x, y time.Time) int { return x.Compare(y) })

	groups := make([][]int, 0, len(dates))
	for _, day := range dates {
		group := byDate[day]
		slices.SortFunc(group, func(x, y int) int {
			if d := assignments[x].ShiftPosition - assignments[y].ShiftPosition; d != 0 {
				return d
			}
			switch {
			case assignments[x].EmployeeID < assignments[y].EmployeeID:
				return -1
			case assignments[x].EmployeeID > assignments[y].EmployeeID:
				return 1
			}
			return 0
		})
		groups = append(groups, group)
	}
	return groups
}

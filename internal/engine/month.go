package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth indicates the requested year or month is out of range.
var ErrInvalidMonth = errors.New("engine: invalid year or month")

// MonthInput bundles one month of generation inputs. Employees and Leaves are
// read-only snapshots for the duration of the call.
type MonthInput struct {
	Year      int
	Month     time.Month
	Pattern   Pattern
	Employees []Employee
	Leaves    LeaveLookup
	Source    Source
	Strategy  Strategy
}

// DayReport summarises allocation for one calendar date.
type DayReport struct {
	Date       time.Time
	Skipped    bool
	Candidates int
	Filled     int
	Unfilled   int
}

// MonthPlan is the raw assignment set for a month, ordered by date then position.
type MonthPlan struct {
	Year        int
	Month       time.Month
	Assignments []PlannedAssignment
	Days        []DayReport
}

// UnfilledSlots totals the positions left empty across the month.
func (p MonthPlan) UnfilledSlots() int {
	total := 0
	for _, day := range p.Days {
		total += day.Unfilled
	}
	return total
}

// MonthDates lists every calendar date of the month.
func MonthDates(year int, month time.Month) ([]time.Time, error) {
	if year < 1 || year > 9999 || month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: %04d-%02d", ErrInvalidMonth, year, int(month))
	}
	first := Date(year, month, 1)
	days := first.AddDate(0, 1, -1).Day()
	dates := make([]time.Time, 0, days)
	for day := 1; day <= days; day++ {
		dates = append(dates, Date(year, month, day))
	}
	return dates, nil
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// GenerateMonth walks the month and allocates every eligible date.
func GenerateMonth(in MonthInput) (MonthPlan, error) {
	if err := in.Pattern.Validate(); err != nil {
		return MonthPlan{}, err
	}
	dates, err := MonthDates(in.Year, in.Month)
	if err != nil {
		return MonthPlan{}, err
	}
	src := in.Source
	if src == nil {
		src = SystemSource()
	}
	var load map[int64]int
	if in.Strategy == StrategyBalanced {
		load = make(map[int64]int, len(in.Employees))
	}

	plan := MonthPlan{Year: in.Year, Month: in.Month, Days: make([]DayReport, 0, len(dates))}
	for _, date := range dates {
		if in.Pattern.SkipWeekends && IsWeekend(date) {
			plan.Days = append(plan.Days, DayReport{Date: date, Skipped: true})
			continue
		}
		working := make([]Employee, 0, len(in.Employees))
		for _, employee := range in.Employees {
			if IsWorkDay(employee, date, in.Pattern) {
				working = append(working, employee)
			}
		}
		candidates := FilterAvailable(working, date, in.Leaves)

		var slots []Slot
		if load != nil {
			slots = AllocateDayBalanced(candidates, in.Pattern.ShiftsPerDay, src, load)
		} else {
			slots = AllocateDay(candidates, in.Pattern.ShiftsPerDay, src)
		}
		for _, slot := range slots {
			plan.Assignments = append(plan.Assignments, PlannedAssignment{
				EmployeeID:    slot.Employee.ID,
				Date:          date,
				ShiftPosition: slot.ShiftPosition,
			})
			if load != nil {
				load[slot.Employee.ID]++
			}
		}
		plan.Days = append(plan.Days, DayReport{
			Date:       date,
			Candidates: len(candidates),
			Filled:     len(slots),
			Unfilled:   in.Pattern.ShiftsPerDay - len(slots),
		})
	}
	return plan, nil
}

package engine

import "time"

// LeaveLookup answers whether an employee is on approved leave on a date.
type LeaveLookup interface {
	OnLeave(employeeID int64, date time.Time) bool
}

// LeaveIndex is an in-memory LeaveLookup over a snapshot of leave records.
type LeaveIndex struct {
	byEmployee map[int64][]Leave
}

// NewLeaveIndex indexes the active leaves by employee. Overlapping ranges are kept as-is.
func NewLeaveIndex(leaves []Leave) *LeaveIndex {
	idx := &LeaveIndex{byEmployee: make(map[int64][]Leave)}
	for _, leave := range leaves {
		if !leave.IsActive {
			continue
		}
		idx.byEmployee[leave.EmployeeID] = append(idx.byEmployee[leave.EmployeeID], leave)
	}
	return idx
}

// OnLeave implements LeaveLookup.
func (idx *LeaveIndex) OnLeave(employeeID int64, date time.Time) bool {
	if idx == nil {
		return false
	}
	for _, leave := range idx.byEmployee[employeeID] {
		if leave.Covers(date) {
			return true
		}
	}
	return false
}

// FilterAvailable drops employees on leave on date, preserving input order.
func FilterAvailable(employees []Employee, date time.Time, leaves LeaveLookup) []Employee {
	available := make([]Employee, 0, len(employees))
	for _, employee := range employees {
		if leaves != nil && leaves.OnLeave(employee.ID, date) {
			continue
		}
		available = append(available, employee)
	}
	return available
}

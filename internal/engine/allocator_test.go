package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func employees(ids ...int64) []Employee {
	out := make([]Employee, 0, len(ids))
	for _, id := range ids {
		out = append(out, Employee{ID: id, OrganizationID: 1, IsActive: true})
	}
	return out
}

func TestFilterAvailableExcludesLeaveRangeInclusive(t *testing.T) {
	leaves := NewLeaveIndex([]Leave{
		{ID: 1, EmployeeID: 2, StartDate: Date(2024, time.January, 3), EndDate: Date(2024, time.January, 5), IsActive: true},
	})
	staff := employees(1, 2, 3)

	absent := 0
	for day := 1; day <= 31; day++ {
		date := Date(2024, time.January, day)
		available := FilterAvailable(staff, date, leaves)
		onLeave := day >= 3 && day <= 5
		if onLeave {
			absent++
			require.Len(t, available, 2)
			for _, e := range available {
				assert.NotEqual(t, int64(2), e.ID)
			}
			continue
		}
		require.Len(t, available, 3)
	}
	assert.Equal(t, 3, absent)
}

func TestFilterAvailableIgnoresInactiveAndHandlesOverlap(t *testing.T) {
	leaves := NewLeaveIndex([]Leave{
		{EmployeeID: 1, StartDate: Date(2024, time.May, 1), EndDate: Date(2024, time.May, 10), IsActive: false},
		{EmployeeID: 2, StartDate: Date(2024, time.May, 1), EndDate: Date(2024, time.May, 4), IsActive: true},
		{EmployeeID: 2, StartDate: Date(2024, time.May, 3), EndDate: Date(2024, time.May, 6), IsActive: true},
	})
	staff := employees(1, 2)

	got := FilterAvailable(staff, Date(2024, time.May, 2), leaves)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)

	got = FilterAvailable(staff, Date(2024, time.May, 6), leaves)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)

	got = FilterAvailable(staff, Date(2024, time.May, 7), leaves)
	assert.Len(t, got, 2)

	got = FilterAvailable(staff, Date(2024, time.May, 7), nil)
	assert.Len(t, got, 2)
}

func TestAllocateDayFillsEveryPositionWhenPoolIsLarger(t *testing.T) {
	slots := AllocateDay(employees(1, 2, 3, 4, 5), 3, NewSource(42))

	require.Len(t, slots, 3)
	seen := map[int64]bool{}
	for i, slot := range slots {
		assert.Equal(t, i+1, slot.ShiftPosition)
		assert.False(t, seen[slot.Employee.ID], "employee %d assigned twice", slot.Employee.ID)
		seen[slot.Employee.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestAllocateDayLeavesPositionsUnfilledWhenPoolRunsOut(t *testing.T) {
	slots := AllocateDay(employees(9), 3, NewSource(1))

	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].ShiftPosition)
	assert.Equal(t, int64(9), slots[0].Employee.ID)

	assert.Empty(t, AllocateDay(nil, 3, NewSource(1)))
	assert.Empty(t, AllocateDay(employees(1, 2), 0, NewSource(1)))
}

func TestAllocateDayIsDeterministicForSeed(t *testing.T) {
	pool := employees(1, 2, 3, 4, 5, 6, 7)
	first := AllocateDay(pool, 4, NewSource(7))
	second := AllocateDay(pool, 4, NewSource(7))
	assert.Equal(t, first, second)
	assert.Equal(t, employees(1, 2, 3, 4, 5, 6, 7), pool, "allocator must not mutate candidates")
}

func TestAllocateDayBalancedPrefersLeastLoaded(t *testing.T) {
	load := map[int64]int{1: 5, 2: 0, 3: 5, 4: 0}
	slots := AllocateDayBalanced(employees(1, 2, 3, 4), 2, NewSource(3), load)

	require.Len(t, slots, 2)
	got := map[int64]bool{slots[0].Employee.ID: true, slots[1].Employee.ID: true}
	assert.Equal(t, map[int64]bool{2: true, 4: true}, got)
}

type fixedSource struct{ calls []int }

func (f *fixedSource) IntN(n int) int {
	f.calls = append(f.calls, n)
	return n - 1
}

func TestAllocateDayDrawsFromShrinkingPool(t *testing.T) {
	src := &fixedSource{}
	slots := AllocateDay(employees(1, 2, 3, 4), 3, src)

	assert.Equal(t, []int{4, 3, 2}, src.calls)
	require.Len(t, slots, 3)
	assert.Equal(t, int64(4), slots[0].Employee.ID)
	assert.Equal(t, int64(3), slots[1].Employee.ID)
	assert.Equal(t, int64(2), slots[2].Employee.ID)
}

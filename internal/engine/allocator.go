package engine

import "slices"

// Strategy selects how the day allocator draws from the candidate pool.
type Strategy int

const (
	// StrategyUniform draws uniformly from the remaining pool.
	StrategyUniform Strategy = iota
	// StrategyBalanced draws uniformly among the candidates holding the fewest
	// assignments so far in the month.
	StrategyBalanced
)

// String returns the strategy label used in logs and metrics.
func (s Strategy) String() string {
	switch s {
	case StrategyBalanced:
		return "balanced"
	default:
		return "uniform"
	}
}

// Slot is a filled shift position for one date.
type Slot struct {
	Employee      Employee
	ShiftPosition int
}

// AllocateDay fills positions 1..shiftCount from candidates, using each
// candidate at most once. Positions beyond the pool size stay unfilled.
func AllocateDay(candidates []Employee, shiftCount int, src Source) []Slot {
	return allocate(candidates, shiftCount, src, nil)
}

// AllocateDayBalanced behaves like AllocateDay but only draws among the
// candidates with the lowest count in load.
func AllocateDayBalanced(candidates []Employee, shiftCount int, src Source, load map[int64]int) []Slot {
	if load == nil {
		load = map[int64]int{}
	}
	return allocate(candidates, shiftCount, src, load)
}

func allocate(candidates []Employee, shiftCount int, src Source, load map[int64]int) []Slot {
	if shiftCount <= 0 || len(candidates) == 0 {
		return nil
	}
	if src == nil {
		src = SystemSource()
	}
	pool := slices.Clone(candidates)
	slots := make([]Slot, 0, min(shiftCount, len(pool)))
	for position := 1; position <= shiftCount && len(pool) > 0; position++ {
		idx := pick(pool, src, load)
		slots = append(slots, Slot{Employee: pool[idx], ShiftPosition: position})
		pool = slices.Delete(pool, idx, idx+1)
	}
	return slots
}

func pick(pool []Employee, src Source, load map[int64]int) int {
	if load == nil {
		return src.IntN(len(pool))
	}
	lowest := load[pool[0].ID]
	for _, employee := range pool[1:] {
		lowest = min(lowest, load[employee.ID])
	}
	eligible := make([]int, 0, len(pool))
	for i, employee := range pool {
		if load[employee.ID] == lowest {
			eligible = append(eligible, i)
		}
	}
	return eligible[src.IntN(len(eligible))]
}

package batch

import "math"

// BuildAggregate computes run-level counts from the current per-file
// states plus the unit accounting. It is a pure function and is called
// fresh on every emission; nothing is patched incrementally, so the
// aggregate can never drift from the states it was derived from.
func BuildAggregate(states map[string]*FileState, completedUnits, totalUnits int) Aggregate {
	agg := Aggregate{
		Total:          len(states),
		CompletedUnits: completedUnits,
		TotalUnits:     totalUnits,
	}

	for _, st := range states {
		switch st.Status {
		case StatusQueued:
			agg.Queued++
		case StatusRunning:
			agg.Running++
		case StatusSuccess:
			agg.Succeeded++
		case StatusFailed:
			agg.Failed++
		}
	}

	if totalUnits > 0 {
		agg.Percent = int(math.Round(float64(completedUnits) / float64(totalUnits) * 100))
	}
	return agg
}

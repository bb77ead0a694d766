// Package analysis orchestrates the per-condition filter runs: the
// control condition goes first and yields the baseline thresholds every
// other condition is filtered against.
package analysis

import (
	"log"

	"github.com/particle-data/mobility.report/internal/stats"
	"github.com/particle-data/mobility.report/internal/track"
)

// Summary holds per-column mean and population standard deviation over
// a condition's final filtered table, plus the row counts before and
// after filtering. Valid is false when no statistics exist: either the
// table ended empty or the condition's input could not be processed at
// all; consumers report such conditions as missing rather than zero.
type Summary struct {
	Means        map[string]float64
	Stds         map[string]float64
	InitialCount int
	FinalCount   int
	Valid        bool
}

// Summarize computes the summary of a filtered table. An empty table
// produces an invalid (missing) summary; that is logged, not an error.
func Summarize(t *track.Table, initialCount int) Summary {
	s := Summary{
		Means:        make(map[string]float64),
		Stds:         make(map[string]float64),
		InitialCount: initialCount,
		FinalCount:   t.RowCount(),
	}
	if t.RowCount() == 0 {
		log.Printf("warning: no tracks remain, reporting missing summary")
		return s
	}
	for _, col := range t.Columns() {
		vals, err := t.ColumnValues(col)
		if err != nil {
			continue
		}
		s.Means[col] = stats.Mean(vals)
		s.Stds[col] = stats.PopStdDev(vals)
	}
	s.Valid = true
	return s
}

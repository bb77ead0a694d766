package analysis

import (
	"fmt"

	"github.com/particle-data/mobility.report/internal/filter"
	"github.com/particle-data/mobility.report/internal/track"
)

// ControlExhaustionError reports that the control condition ended with
// zero rows even after every guarded reversion, so no baseline exists
// for the remaining conditions to be filtered against.
type ControlExhaustionError struct {
	Condition string
}

func (e *ControlExhaustionError) Error() string {
	return fmt.Sprintf("control condition %s retained no rows, cannot derive baseline thresholds", e.Condition)
}

// Baseline is the outcome of running the control condition: the derived
// thresholds plus the control's own condition result.
type Baseline struct {
	Thresholds filter.ThresholdSet
	Control    ConditionResult
}

// DeriveBaseline filters the control table with every scalar threshold
// zeroed (which also arms the std/iqr stages' upper-bound rejection)
// and extracts the thresholds applied to every subsequent condition:
// the speed threshold is the control's mean straight-line speed plus
// multiplier standard deviations, and the displacement and linearity
// thresholds are the control means of their columns.
func DeriveBaseline(cond string, t *track.Table, params filter.Params) (Baseline, error) {
	params = params.WithThresholds(filter.ThresholdSet{Multiplier: params.Thresholds.Multiplier})

	initial := t.RowCount()
	drops, reversions, err := filter.NewPipeline(params).Run(t)
	if err != nil {
		return Baseline{}, fmt.Errorf("control pipeline: %w", err)
	}

	summary := Summarize(t, initial)
	result := ConditionResult{
		Label:      cond,
		Summary:    summary,
		Drops:      drops,
		Reversions: reversions,
		Kept:       keptTracks(t),
	}
	if !summary.Valid {
		return Baseline{Control: result}, &ControlExhaustionError{Condition: cond}
	}

	m := params.Thresholds.Multiplier
	return Baseline{
		Thresholds: filter.ThresholdSet{
			Speed:        summary.Means[track.ColStraightLineSpeed] + m*summary.Stds[track.ColStraightLineSpeed],
			Displacement: summary.Means[track.ColDisplacement],
			Linearity:    summary.Means[track.ColLinearity],
			Multiplier:   m,
		},
		Control: result,
	}, nil
}

// keptTracks captures the surviving rows' identity and straight-line
// speed for the audit and plotting outputs.
func keptTracks(t *track.Table) []KeptTrack {
	speeds, err := t.ColumnValues(track.ColStraightLineSpeed)
	if err != nil {
		return nil
	}
	ids := t.RowIDs()
	kept := make([]KeptTrack, len(ids))
	for i, id := range ids {
		kept[i] = KeptTrack{RowID: id, Speed: speeds[i]}
	}
	return kept
}

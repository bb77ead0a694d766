package filter

import (
	"github.com/particle-data/mobility.report/internal/track"
)

// Pipeline runs the fixed stage sequence over one table, guarding each
// stage against overfiltering.
type Pipeline struct {
	params Params
	stages []Stage
}

// NewPipeline builds a pipeline for one condition's run. params is
// captured by value and never mutated.
func NewPipeline(params Params) *Pipeline {
	return &Pipeline{params: params, stages: Stages()}
}

// Run mutates t in place through every enabled stage and returns the
// accumulated drop records and any guard reversions. Drop records from
// a reverted stage are retained: the reversion is surfaced as a
// diagnostic, not hidden, and the audit trail keeps what the stage
// tried to do. The transient duration column is discarded once the
// duration stage's boundary has passed, whatever the stage's outcome.
func (pl *Pipeline) Run(t *track.Table) ([]DropRecord, []Reversion, error) {
	var allDrops []DropRecord
	var reversions []Reversion

	for _, st := range pl.stages {
		if st.Enabled(pl.params) {
			snap := t.Snapshot()
			before := t.RowCount()

			drops, err := st.Apply(t, pl.params)
			if err != nil {
				return allDrops, reversions, err
			}
			allDrops = append(allDrops, drops...)

			ids := make([]int, len(drops))
			for i, d := range drops {
				ids[i] = d.RowID
			}
			t.RemoveRows(ids)

			// Overfiltering guard: a stage that removes the last row is
			// fully undone and the pipeline continues as though it had
			// never run. Evaluated independently at every stage boundary.
			if t.RowCount() == 0 && before > 0 {
				reversions = append(reversions, Reversion{Stage: st.Name(), RowsBefore: before})
				t.Restore(snap)
			}
		}

		if st.Name() == "duration" {
			t.DropColumn(track.ColDuration)
		}
	}

	return allDrops, reversions, nil
}

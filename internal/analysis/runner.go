package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/particle-data/mobility.report/internal/config"
	"github.com/particle-data/mobility.report/internal/discovery"
	"github.com/particle-data/mobility.report/internal/filter"
	"github.com/particle-data/mobility.report/internal/track"
)

// ErrNoBaseline marks conditions that could not run because the control
// condition produced no usable thresholds.
var ErrNoBaseline = errors.New("no baseline thresholds available")

// KeptTrack is one surviving row's identity and straight-line speed.
type KeptTrack struct {
	RowID int
	Speed float64
}

// ConditionResult is everything one condition's pipeline run produced.
// Err is set when the condition could not be processed (unreadable or
// malformed input, or no baseline); its Summary is then invalid and the
// condition is reported as missing.
type ConditionResult struct {
	Label       string
	FrequencyHz float64
	Summary     Summary
	Drops       []filter.DropRecord
	Reversions  []filter.Reversion
	Kept        []KeptTrack
	Err         error
}

// RunResult is the collected outcome of an analysis run.
type RunResult struct {
	Thresholds filter.ThresholdSet
	// BaselineErr is non-nil when the control condition failed and no
	// fallback threshold was configured; every other condition is then
	// reported missing.
	BaselineErr error
	Conditions  []ConditionResult
}

// Runner executes the control-first orchestration loop. Load is
// injectable for tests and defaults to reading CSV files from disk.
type Runner struct {
	Config *config.AnalysisConfig
	Load   func(path string) (*track.Table, error)
}

// NewRunner builds a Runner over the given configuration.
func NewRunner(cfg *config.AnalysisConfig) *Runner {
	return &Runner{Config: cfg, Load: track.LoadCSVFile}
}

// Run processes every condition. The control condition (if present)
// completes first and derives the thresholds; remaining conditions then
// fan out across a bounded worker pool, each on its own table, sharing
// only the immutable threshold set. Per-condition failures never abort
// siblings; Run errors only when there is no input at all.
func (r *Runner) Run(ctx context.Context, conds []discovery.Condition) (*RunResult, error) {
	if len(conds) == 0 {
		return nil, errors.New("no usable input conditions")
	}

	results := make([]ConditionResult, len(conds))
	for i, c := range conds {
		results[i] = ConditionResult{Label: c.Label, FrequencyHz: c.FrequencyHz}
	}

	controlIdx := -1
	for i, c := range conds {
		if c.Control() {
			controlIdx = i
			break
		}
	}

	thresholds := filter.ThresholdSet{Multiplier: r.Config.GetBaselineMultiplier()}
	var baselineErr error

	if controlIdx >= 0 {
		cond := conds[controlIdx]
		tbl, err := r.Load(cond.Path)
		if err != nil {
			log.Printf("condition %s: %v", cond.Label, err)
			results[controlIdx].Err = err
			baselineErr = fmt.Errorf("control condition %s: %w", cond.Label, err)
		} else {
			baseline, err := DeriveBaseline(cond.Label, tbl, r.Config.FilterParams(thresholds))
			res := baseline.Control
			res.FrequencyHz = cond.FrequencyHz
			results[controlIdx] = res
			r.logReversions(cond.Label, res.Reversions)
			if err != nil {
				log.Printf("condition %s: %v", cond.Label, err)
				results[controlIdx].Err = err
				baselineErr = err
			} else {
				thresholds = baseline.Thresholds
			}
		}
	} else {
		log.Printf("warning: no control condition found; filtering with zero thresholds")
	}

	if baselineErr != nil || controlIdx < 0 {
		if r.Config.GetSpeedFallbackEnabled() {
			thresholds.Speed = r.Config.GetSpeedFallbackThreshold()
			log.Printf("warning: using configured fallback speed threshold %g", thresholds.Speed)
			baselineErr = nil
		}
	}

	if baselineErr != nil {
		// The control itself is unusable. Every dependent condition is
		// reported missing rather than filtered blind.
		for i := range conds {
			if i != controlIdx {
				results[i].Err = fmt.Errorf("%w: %v", ErrNoBaseline, baselineErr)
			}
		}
		return &RunResult{Thresholds: thresholds, BaselineErr: baselineErr, Conditions: results}, nil
	}

	params := r.Config.FilterParams(thresholds)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.Config.GetWorkers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = r.processCondition(conds[idx], params)
			}
		}()
	}

feed:
	for i := range conds {
		if i == controlIdx {
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &RunResult{Thresholds: thresholds, Conditions: results}, nil
}

// processCondition runs one non-control condition end to end on its own
// table. Failures are recorded on the result, never propagated.
func (r *Runner) processCondition(cond discovery.Condition, params filter.Params) ConditionResult {
	res := ConditionResult{Label: cond.Label, FrequencyHz: cond.FrequencyHz}

	tbl, err := r.Load(cond.Path)
	if err != nil {
		log.Printf("condition %s: %v", cond.Label, err)
		res.Err = err
		return res
	}

	initial := tbl.RowCount()
	drops, reversions, err := filter.NewPipeline(params).Run(tbl)
	res.Drops = drops
	res.Reversions = reversions
	r.logReversions(cond.Label, reversions)
	if err != nil {
		log.Printf("condition %s: pipeline: %v", cond.Label, err)
		res.Err = err
		return res
	}

	res.Summary = Summarize(tbl, initial)
	res.Kept = keptTracks(tbl)
	return res
}

func (r *Runner) logReversions(label string, reversions []filter.Reversion) {
	for _, rev := range reversions {
		log.Printf("condition %s: overfiltering at stage %s, reverted (rows before: %d)",
			label, rev.Stage, rev.RowsBefore)
	}
}

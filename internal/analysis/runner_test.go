package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/particle-data/mobility.report/internal/config"
	"github.com/particle-data/mobility.report/internal/discovery"
	"github.com/particle-data/mobility.report/internal/filter"
	"github.com/particle-data/mobility.report/internal/track"
)

const (
	idxDisplacement = 0
	idxSLS          = 5
	idxLinearity    = 6
)

func metricRow(id int, sls float64) track.Row {
	vals := make([]float64, len(track.MetricColumns))
	for i := range vals {
		vals[i] = 1
	}
	vals[idxSLS] = sls
	return track.Row{ID: id, Values: vals}
}

func metricTable(rows ...track.Row) *track.Table {
	return track.NewTable(track.MetricColumns, rows)
}

// tableLoader maps condition paths to freshly-built tables, standing in
// for the CSV loader.
func tableLoader(tables map[string][]track.Row) func(string) (*track.Table, error) {
	return func(path string) (*track.Table, error) {
		rows, ok := tables[path]
		if !ok {
			return nil, fmt.Errorf("open %s: no such file", path)
		}
		return metricTable(rows...), nil
	}
}

func resultByLabel(t *testing.T, res *RunResult, label string) ConditionResult {
	t.Helper()
	for _, c := range res.Conditions {
		if c.Label == label {
			return c
		}
	}
	t.Fatalf("no condition result labeled %s", label)
	return ConditionResult{}
}

func TestSummarize(t *testing.T) {
	tbl := metricTable(metricRow(3, 2), metricRow(4, 4))
	s := Summarize(tbl, 5)
	if !s.Valid {
		t.Fatal("summary of a non-empty table must be valid")
	}
	if s.InitialCount != 5 || s.FinalCount != 2 {
		t.Errorf("counts = %d/%d, want 5/2", s.InitialCount, s.FinalCount)
	}
	if got := s.Means[track.ColStraightLineSpeed]; got != 3 {
		t.Errorf("mean straight-line speed = %f, want 3", got)
	}
	// Population standard deviation of {2,4} is 1.
	if got := s.Stds[track.ColStraightLineSpeed]; got != 1 {
		t.Errorf("std straight-line speed = %f, want 1", got)
	}
}

func TestSummarizeEmptyTable(t *testing.T) {
	s := Summarize(metricTable(), 7)
	if s.Valid {
		t.Fatal("summary of an empty table must be invalid")
	}
	if s.InitialCount != 7 || s.FinalCount != 0 {
		t.Errorf("counts = %d/%d, want 7/0", s.InitialCount, s.FinalCount)
	}
}

func TestDeriveBaseline(t *testing.T) {
	rows := []track.Row{
		metricRow(3, 1), metricRow(4, 2), metricRow(5, 3),
		metricRow(6, 4), metricRow(7, 5),
	}
	for i := range rows {
		rows[i].Values[idxDisplacement] = 7
		rows[i].Values[idxLinearity] = 0.5
	}
	tbl := metricTable(rows...)

	params := filter.Params{
		SpeedEnabled: true,
		Thresholds:   filter.ThresholdSet{Multiplier: 2},
	}
	baseline, err := DeriveBaseline("0.0", tbl, params)
	if err != nil {
		t.Fatalf("DeriveBaseline failed: %v", err)
	}

	// Speed = control mean + multiplier * population std of the
	// straight-line speed column: 3 + 2*sqrt(2).
	wantSpeed := 3 + 2*math.Sqrt2
	if got := baseline.Thresholds.Speed; math.Abs(got-wantSpeed) > 1e-12 {
		t.Errorf("speed threshold = %v, want %v", got, wantSpeed)
	}
	if got := baseline.Thresholds.Displacement; got != 7 {
		t.Errorf("displacement threshold = %v, want 7", got)
	}
	if got := baseline.Thresholds.Linearity; got != 0.5 {
		t.Errorf("linearity threshold = %v, want 0.5", got)
	}
	if got := baseline.Thresholds.Multiplier; got != 2 {
		t.Errorf("multiplier = %v, want 2", got)
	}
	if !baseline.Control.Summary.Valid {
		t.Error("control summary must be valid")
	}
	if len(baseline.Control.Kept) != 5 {
		t.Errorf("kept %d control tracks, want 5", len(baseline.Control.Kept))
	}
}

func TestDeriveBaselineExhaustion(t *testing.T) {
	_, err := DeriveBaseline("0.0", metricTable(), filter.Params{SpeedEnabled: true})
	var exhausted *ControlExhaustionError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ControlExhaustionError", err)
	}
	if exhausted.Condition != "0.0" {
		t.Errorf("condition = %s, want 0.0", exhausted.Condition)
	}
}

func TestRunnerControlFirst(t *testing.T) {
	r := NewRunner(config.Default())
	r.Load = tableLoader(map[string][]track.Row{
		"control.csv": {metricRow(3, 1), metricRow(4, 1), metricRow(5, 1), metricRow(6, 1)},
		"a.csv":       {metricRow(3, 0.5), metricRow(4, 2), metricRow(5, 3)},
		"b.csv":       {metricRow(3, 1.5), metricRow(4, 2.5)},
	})

	conds := []discovery.Condition{
		{Label: "100.0", FrequencyHz: 100, Path: "a.csv"},
		{Label: "0.0", FrequencyHz: 0, Path: "control.csv"},
		{Label: "200.0", FrequencyHz: 200, Path: "b.csv"},
	}
	res, err := r.Run(context.Background(), conds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Control speeds are all 1 with zero spread, so the derived speed
	// threshold is exactly 1 (default multiplier 0).
	if res.Thresholds.Speed != 1 {
		t.Fatalf("derived speed threshold = %v, want 1", res.Thresholds.Speed)
	}
	if res.BaselineErr != nil {
		t.Fatalf("unexpected baseline error: %v", res.BaselineErr)
	}

	a := resultByLabel(t, res, "100.0")
	if a.Err != nil {
		t.Fatalf("condition 100.0: %v", a.Err)
	}
	if a.Summary.InitialCount != 3 || a.Summary.FinalCount != 2 {
		t.Errorf("condition 100.0 counts = %d/%d, want 3/2",
			a.Summary.InitialCount, a.Summary.FinalCount)
	}
	if len(a.Drops) != 1 || a.Drops[0].Reason != filter.ReasonSpeed {
		t.Errorf("condition 100.0 drops = %v, want one speed drop", a.Drops)
	}

	b := resultByLabel(t, res, "200.0")
	if b.Summary.FinalCount != 2 {
		t.Errorf("condition 200.0 final count = %d, want 2", b.Summary.FinalCount)
	}
}

func TestRunnerControlExhausted(t *testing.T) {
	r := NewRunner(config.Default())
	r.Load = tableLoader(map[string][]track.Row{
		"control.csv": {},
		"a.csv":       {metricRow(3, 2)},
		"b.csv":       {metricRow(3, 3)},
	})

	conds := []discovery.Condition{
		{Label: "0.0", FrequencyHz: 0, Path: "control.csv"},
		{Label: "100.0", FrequencyHz: 100, Path: "a.csv"},
		{Label: "200.0", FrequencyHz: 200, Path: "b.csv"},
	}
	res, err := r.Run(context.Background(), conds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var exhausted *ControlExhaustionError
	if !errors.As(res.BaselineErr, &exhausted) {
		t.Fatalf("BaselineErr = %v, want ControlExhaustionError", res.BaselineErr)
	}

	// Every dependent condition is reported missing, not filtered blind.
	for _, label := range []string{"100.0", "200.0"} {
		c := resultByLabel(t, res, label)
		if !errors.Is(c.Err, ErrNoBaseline) {
			t.Errorf("condition %s err = %v, want ErrNoBaseline", label, c.Err)
		}
		if c.Summary.Valid {
			t.Errorf("condition %s has a valid summary despite missing baseline", label)
		}
	}
}

func TestRunnerFallbackThreshold(t *testing.T) {
	enabled := true
	fallback := 0.05
	cfg := config.Default()
	cfg.SpeedFallbackEnabled = &enabled
	cfg.SpeedFallbackThreshold = &fallback

	r := NewRunner(cfg)
	r.Load = tableLoader(map[string][]track.Row{
		"control.csv": {},
		"a.csv":       {metricRow(3, 0.01), metricRow(4, 2)},
	})

	conds := []discovery.Condition{
		{Label: "0.0", FrequencyHz: 0, Path: "control.csv"},
		{Label: "100.0", FrequencyHz: 100, Path: "a.csv"},
	}
	res, err := r.Run(context.Background(), conds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The configured fallback substitutes for the failed derivation and
	// the run proceeds.
	if res.BaselineErr != nil {
		t.Fatalf("BaselineErr = %v, want nil with fallback enabled", res.BaselineErr)
	}
	if res.Thresholds.Speed != fallback {
		t.Fatalf("speed threshold = %v, want fallback %v", res.Thresholds.Speed, fallback)
	}
	a := resultByLabel(t, res, "100.0")
	if a.Err != nil {
		t.Fatalf("condition 100.0: %v", a.Err)
	}
	if a.Summary.FinalCount != 1 {
		t.Errorf("condition 100.0 final count = %d, want 1", a.Summary.FinalCount)
	}
}

func TestRunnerMissingFileIsolation(t *testing.T) {
	r := NewRunner(config.Default())
	r.Load = tableLoader(map[string][]track.Row{
		"control.csv": {metricRow(3, 1), metricRow(4, 1)},
		"b.csv":       {metricRow(3, 2), metricRow(4, 3)},
	})

	conds := []discovery.Condition{
		{Label: "0.0", FrequencyHz: 0, Path: "control.csv"},
		{Label: "100.0", FrequencyHz: 100, Path: "missing.csv"},
		{Label: "200.0", FrequencyHz: 200, Path: "b.csv"},
	}
	res, err := r.Run(context.Background(), conds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	a := resultByLabel(t, res, "100.0")
	if a.Err == nil {
		t.Fatal("condition with unreadable input must carry an error")
	}
	if a.Summary.Valid {
		t.Error("condition with unreadable input must report a missing summary")
	}

	// The sibling condition is unaffected.
	b := resultByLabel(t, res, "200.0")
	if b.Err != nil {
		t.Fatalf("condition 200.0: %v", b.Err)
	}
	if b.Summary.FinalCount != 2 {
		t.Errorf("condition 200.0 final count = %d, want 2", b.Summary.FinalCount)
	}
}

func TestRunnerNoControl(t *testing.T) {
	r := NewRunner(config.Default())
	r.Load = tableLoader(map[string][]track.Row{
		"a.csv": {metricRow(3, 2), metricRow(4, 3)},
	})

	conds := []discovery.Condition{
		{Label: "100.0", FrequencyHz: 100, Path: "a.csv"},
	}
	res, err := r.Run(context.Background(), conds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Thresholds.Speed != 0 {
		t.Errorf("speed threshold = %v, want 0 without a control", res.Thresholds.Speed)
	}
	a := resultByLabel(t, res, "100.0")
	if a.Err != nil {
		t.Fatalf("condition 100.0: %v", a.Err)
	}
	if a.Summary.FinalCount != 2 {
		t.Errorf("condition 100.0 final count = %d, want 2", a.Summary.FinalCount)
	}
}

func TestRunnerNoConditions(t *testing.T) {
	r := NewRunner(config.Default())
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("Run with no conditions must fail")
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	r := NewRunner(config.Default())
	r.Load = tableLoader(map[string][]track.Row{
		"control.csv": {metricRow(3, 1)},
		"a.csv":       {metricRow(3, 2)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conds := []discovery.Condition{
		{Label: "0.0", FrequencyHz: 0, Path: "control.csv"},
		{Label: "100.0", FrequencyHz: 100, Path: "a.csv"},
	}
	if _, err := r.Run(ctx, conds); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

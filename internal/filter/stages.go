package filter

import (
	"math"

	"github.com/particle-data/mobility.report/internal/stats"
	"github.com/particle-data/mobility.report/internal/track"
)

// Stage is one unit of row elimination. Apply is pure with respect to
// the table: it inspects the current rows and reports which to drop;
// the pipeline performs the removal so the guard can interpose.
type Stage interface {
	Name() string
	Enabled(p Params) bool
	Apply(t *track.Table, p Params) ([]DropRecord, error)
}

// Stages returns the pipeline's stages in their fixed execution order.
func Stages() []Stage {
	return []Stage{
		durationStage{},
		thresholdStage{
			name:      "speed",
			column:    track.ColStraightLineSpeed,
			reason:    ReasonSpeed,
			enabled:   func(p Params) bool { return p.SpeedEnabled },
			threshold: func(p Params) float64 { return p.Thresholds.Speed },
		},
		thresholdStage{
			name:      "displacement",
			column:    track.ColDisplacement,
			reason:    ReasonDisplacement,
			enabled:   func(p Params) bool { return p.DisplacementEnabled },
			threshold: func(p Params) float64 { return p.Thresholds.Displacement },
		},
		thresholdStage{
			name:      "linearity",
			column:    track.ColLinearity,
			reason:    ReasonLinearity,
			enabled:   func(p Params) bool { return p.LinearityEnabled },
			threshold: func(p Params) float64 { return p.Thresholds.Linearity },
		},
		qualityStage{},
		distributionStage{
			name:    "std",
			reason:  ReasonStd,
			columns: func(p Params) map[string]bool { return p.StdColumns },
			// 2 standard deviations either side of the mean.
			bound: func(vals []float64) float64 { return 2 * stats.PopStdDev(vals) },
		},
		distributionStage{
			name:    "iqr",
			reason:  ReasonIQR,
			columns: func(p Params) map[string]bool { return p.IQRColumns },
			// 1.5 interquartile ranges either side of the mean.
			bound: func(vals []float64) float64 { return 1.5 * stats.IQR(vals) },
		},
	}
}

// durationStage removes tracks shorter than the configured duration, as
// well as tracks whose duration is missing. Short tracks carry more
// measurement error than the rest of the pipeline can correct for.
type durationStage struct{}

func (durationStage) Name() string { return "duration" }

func (durationStage) Enabled(p Params) bool { return p.Duration.Enabled }

func (durationStage) Apply(t *track.Table, p Params) ([]DropRecord, error) {
	if !t.HasColumn(track.ColDuration) {
		return nil, nil
	}
	durations, err := t.ColumnValues(track.ColDuration)
	if err != nil {
		return nil, err
	}
	speeds, err := t.ColumnValues(track.ColStraightLineSpeed)
	if err != nil {
		return nil, err
	}

	var drops []DropRecord
	for i, id := range t.RowIDs() {
		if math.IsNaN(durations[i]) || durations[i] < p.Duration.Threshold {
			drops = append(drops, DropRecord{RowID: id, Speed: speeds[i], Reason: ReasonDuration})
		}
	}
	return drops, nil
}

// thresholdStage removes rows whose value in a single column falls
// below a scalar threshold. Three of the pipeline's stages share this
// shape, differing only in column, threshold source, and reason tag.
type thresholdStage struct {
	name      string
	column    string
	reason    Reason
	enabled   func(Params) bool
	threshold func(Params) float64
}

func (s thresholdStage) Name() string { return s.name }

func (s thresholdStage) Enabled(p Params) bool { return s.enabled(p) }

func (s thresholdStage) Apply(t *track.Table, p Params) ([]DropRecord, error) {
	vals, err := t.ColumnValues(s.column)
	if err != nil {
		return nil, err
	}
	speeds, err := t.ColumnValues(track.ColStraightLineSpeed)
	if err != nil {
		return nil, err
	}

	limit := s.threshold(p)
	var drops []DropRecord
	for i, id := range t.RowIDs() {
		if vals[i] < limit {
			drops = append(drops, DropRecord{RowID: id, Speed: speeds[i], Reason: s.reason})
		}
	}
	return drops, nil
}

// qualityStage removes rows whose mean quality falls below the
// configured percentile of the quality column as it stands entering
// this stage.
type qualityStage struct{}

func (qualityStage) Name() string { return "quality" }

func (qualityStage) Enabled(p Params) bool { return p.Quality.Enabled }

func (qualityStage) Apply(t *track.Table, p Params) ([]DropRecord, error) {
	quality, err := t.ColumnValues(track.ColMeanQuality)
	if err != nil {
		return nil, err
	}
	speeds, err := t.ColumnValues(track.ColStraightLineSpeed)
	if err != nil {
		return nil, err
	}

	limit := stats.Percentile(quality, p.Quality.Percentile)
	var drops []DropRecord
	for i, id := range t.RowIDs() {
		if quality[i] < limit {
			drops = append(drops, DropRecord{RowID: id, Speed: speeds[i], Reason: ReasonQuality})
		}
	}
	return drops, nil
}

// distributionStage removes outliers per flagged column, measured
// against a spread bound around the column mean. Means and bounds are
// computed once from the table state at stage entry, never per dropped
// row. The upper-bound branch fires only for the control condition;
// treatment conditions keep fast movers. A row is dropped once, tagged
// with the first flagged column that rejected it.
type distributionStage struct {
	name    string
	reason  Reason
	columns func(Params) map[string]bool
	bound   func(vals []float64) float64
}

func (s distributionStage) Name() string { return s.name }

func (s distributionStage) Enabled(p Params) bool { return len(s.columns(p)) > 0 }

func (s distributionStage) Apply(t *track.Table, p Params) ([]DropRecord, error) {
	flags := s.columns(p)

	var flagged []string
	for _, col := range t.Columns() {
		if flags[col] {
			flagged = append(flagged, col)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	values := make(map[string][]float64, len(flagged))
	means := make(map[string]float64, len(flagged))
	bounds := make(map[string]float64, len(flagged))
	for _, col := range flagged {
		vals, err := t.ColumnValues(col)
		if err != nil {
			return nil, err
		}
		values[col] = vals
		means[col] = stats.Mean(vals)
		bounds[col] = s.bound(vals)
	}

	speeds, err := t.ColumnValues(track.ColStraightLineSpeed)
	if err != nil {
		return nil, err
	}

	control := p.Thresholds.Control()
	var drops []DropRecord
	for i, id := range t.RowIDs() {
		for _, col := range flagged {
			v := values[col][i]
			if v < means[col]-bounds[col] {
				drops = append(drops, DropRecord{RowID: id, Speed: speeds[i], Reason: s.reason})
				break
			}
			if control && v > means[col]+bounds[col] {
				drops = append(drops, DropRecord{RowID: id, Speed: speeds[i], Reason: s.reason})
				break
			}
		}
	}
	return drops, nil
}

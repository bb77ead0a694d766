package filter

// ThresholdSet carries the scalar thresholds derived from the control
// condition. A zero Speed marks the control condition itself, which is
// what switches the std/iqr stages into two-sided rejection. Created
// once per analysis run and treated as read-only afterwards.
type ThresholdSet struct {
	Speed        float64
	Displacement float64
	Linearity    float64
	Multiplier   float64
}

// Control reports whether these thresholds describe the control
// (zero-stimulus) condition.
func (t ThresholdSet) Control() bool { return t.Speed == 0 }

// DurationParams configures the track-duration stage.
type DurationParams struct {
	Enabled   bool
	Threshold float64
}

// QualityParams configures the quality-percentile stage.
type QualityParams struct {
	Enabled    bool
	Percentile float64
}

// Params is the immutable per-run configuration consumed by every
// stage. It is passed by value through the pipeline; nothing in this
// package holds mutable state between runs.
type Params struct {
	Duration            DurationParams
	SpeedEnabled        bool
	DisplacementEnabled bool
	LinearityEnabled    bool
	Quality             QualityParams

	// Per-column enablement for the distribution filters, keyed by
	// column name. A nil map disables the stage.
	StdColumns map[string]bool
	IQRColumns map[string]bool

	Thresholds ThresholdSet
}

// WithThresholds returns a copy of p carrying the given threshold set.
func (p Params) WithThresholds(t ThresholdSet) Params {
	p.Thresholds = t
	return p
}

// Package filter implements the guarded multi-stage row-elimination
// pipeline that turns a raw per-track table into its filtered form.
// Stages run in a fixed order, each behind a snapshot/revert guard so a
// stage that would empty the table is undone rather than propagated:
// partial filtering is always preferred to zero usable data.
package filter

// Reason tags why a track was removed. Values match the reason strings
// the dropped-track reports have always used.
type Reason string

const (
	ReasonDuration     Reason = "DURATION_THRESHOLD"
	ReasonSpeed        Reason = "SPEED_THRESHOLD"
	ReasonDisplacement Reason = "DISPLACEMENT_THRESHOLD"
	ReasonLinearity    Reason = "LINEARITY_THRESHOLD"
	ReasonQuality      Reason = "QUALITY_PERCENTILE"
	ReasonStd          Reason = "STD_FILTER"
	ReasonIQR          Reason = "IQR_FILTER"
)

// DropRecord is emitted for every row a stage removes. Speed captures
// the row's MEAN_STRAIGHT_LINE_SPEED at removal time so diagnostic
// output can place dropped tracks on the speed axis without the row.
type DropRecord struct {
	RowID  int
	Speed  float64
	Reason Reason
}

// Reversion is the structured diagnostic recorded when the
// overfiltering guard undoes a stage that removed every remaining row.
type Reversion struct {
	Stage      string
	RowsBefore int
}

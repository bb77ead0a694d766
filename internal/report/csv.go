// Package report persists the outcome of an analysis run: summary CSV
// files mirroring the long-standing output layout, and a SQLite store
// keeping run history queryable.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/particle-data/mobility.report/internal/analysis"
	"github.com/particle-data/mobility.report/internal/track"
)

// Extra summary columns appended after the per-column means.
const (
	colInitialCount  = "INITIAL_TRACK_COUNT"
	colFilteredCount = "FILTERED_TRACK_COUNT"
	colSpeedUmPerS   = "STRAIGHT_LINE_SPEED_UM_PER_S"
)

// WriteSummaryCSV writes one row per condition with the summary means,
// the track counts, and the unit-converted straight-line speed.
// Conditions with a missing summary get empty cells. conversion is the
// pixels/frame to um/s factor.
func WriteSummaryCSV(w io.Writer, results []analysis.ConditionResult, conversion float64) error {
	cw := csv.NewWriter(w)

	header := []string{"FREQUENCY_HZ"}
	header = append(header, track.MetricColumns...)
	header = append(header, colInitialCount, colFilteredCount, colSpeedUmPerS)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, res := range results {
		row := []string{res.Label}
		if !res.Summary.Valid {
			for range header[1:] {
				row = append(row, "")
			}
		} else {
			for _, col := range track.MetricColumns {
				row = append(row, formatFloat(res.Summary.Means[col]))
			}
			row = append(row,
				strconv.Itoa(res.Summary.InitialCount),
				strconv.Itoa(res.Summary.FinalCount),
				formatFloat(res.Summary.Means[track.ColStraightLineSpeed]*conversion),
			)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", res.Label, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteStdsCSV writes one row per condition with the summary standard
// deviations, column names suffixed with _STD.
func WriteStdsCSV(w io.Writer, results []analysis.ConditionResult) error {
	cw := csv.NewWriter(w)

	header := []string{"FREQUENCY_HZ"}
	for _, col := range track.MetricColumns {
		header = append(header, col+"_STD")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, res := range results {
		row := []string{res.Label}
		for _, col := range track.MetricColumns {
			if res.Summary.Valid {
				row = append(row, formatFloat(res.Summary.Stds[col]))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", res.Label, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteAllTracksCSV writes every track seen across the run, kept or
// dropped, sorted by frequency then original position. This is the
// audit trail behind the kept/lost scatter outputs.
func WriteAllTracksCSV(w io.Writer, results []analysis.ConditionResult) error {
	type trackRow struct {
		freq     float64
		label    string
		position int
		speed    float64
		filtered bool
	}

	var rows []trackRow
	for _, res := range results {
		for _, k := range res.Kept {
			rows = append(rows, trackRow{res.FrequencyHz, res.Label, k.RowID, k.Speed, false})
		}
		for _, d := range res.Drops {
			rows = append(rows, trackRow{res.FrequencyHz, res.Label, d.RowID, d.Speed, true})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].freq != rows[j].freq {
			return rows[i].freq < rows[j].freq
		}
		return rows[i].position < rows[j].position
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"FREQUENCY", "ORIGINAL_POSITION", "MEAN_STRAIGHT_LINE_SPEED", "WAS_FILTERED"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.label, strconv.Itoa(r.position), formatFloat(r.speed), strconv.FormatBool(r.filtered)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write track row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

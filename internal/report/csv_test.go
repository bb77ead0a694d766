package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/particle-data/mobility.report/internal/analysis"
	"github.com/particle-data/mobility.report/internal/filter"
	"github.com/particle-data/mobility.report/internal/track"
)

func summaryResult(label string, hz float64, sls float64) analysis.ConditionResult {
	return analysis.ConditionResult{
		Label:       label,
		FrequencyHz: hz,
		Summary: analysis.Summary{
			Means:        map[string]float64{track.ColStraightLineSpeed: sls, track.ColDisplacement: 2},
			Stds:         map[string]float64{track.ColStraightLineSpeed: 0.5},
			InitialCount: 10,
			FinalCount:   8,
			Valid:        true,
		},
	}
}

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	recs, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	return recs
}

func TestWriteSummaryCSV(t *testing.T) {
	results := []analysis.ConditionResult{
		summaryResult("0.0", 0, 1.5),
		{Label: "100.0", FrequencyHz: 100}, // missing summary
	}

	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, results, 2); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}
	recs := parseCSV(t, &buf)

	wantCols := 1 + len(track.MetricColumns) + 3
	if len(recs) != 3 || len(recs[0]) != wantCols {
		t.Fatalf("got %d records of width %d, want 3 of width %d", len(recs), len(recs[0]), wantCols)
	}
	if recs[0][0] != "FREQUENCY_HZ" || recs[0][1] != track.ColDisplacement {
		t.Errorf("header = %v", recs[0])
	}
	if recs[0][wantCols-1] != "STRAIGHT_LINE_SPEED_UM_PER_S" {
		t.Errorf("last header cell = %s", recs[0][wantCols-1])
	}

	if recs[1][0] != "0.0" {
		t.Errorf("row label = %s, want 0.0", recs[1][0])
	}
	// Counts and the converted speed: 1.5 pixels/frame * factor 2.
	if recs[1][wantCols-3] != "10" || recs[1][wantCols-2] != "8" {
		t.Errorf("counts = %s/%s, want 10/8", recs[1][wantCols-3], recs[1][wantCols-2])
	}
	if recs[1][wantCols-1] != "3" {
		t.Errorf("converted speed = %s, want 3", recs[1][wantCols-1])
	}

	// A missing summary renders as empty cells, not zeros.
	for i, cell := range recs[2][1:] {
		if cell != "" {
			t.Errorf("missing-summary cell %d = %q, want empty", i+1, cell)
		}
	}
}

func TestWriteStdsCSV(t *testing.T) {
	results := []analysis.ConditionResult{summaryResult("0.0", 0, 1.5)}

	var buf bytes.Buffer
	if err := WriteStdsCSV(&buf, results); err != nil {
		t.Fatalf("WriteStdsCSV failed: %v", err)
	}
	recs := parseCSV(t, &buf)

	if recs[0][1] != track.ColDisplacement+"_STD" {
		t.Errorf("header cell = %s, want %s_STD", recs[0][1], track.ColDisplacement)
	}
	slsCol := 0
	for i, name := range recs[0] {
		if name == track.ColStraightLineSpeed+"_STD" {
			slsCol = i
		}
	}
	if recs[1][slsCol] != "0.5" {
		t.Errorf("straight-line speed std = %s, want 0.5", recs[1][slsCol])
	}
}

func TestWriteAllTracksCSV(t *testing.T) {
	results := []analysis.ConditionResult{
		{
			Label:       "100.0",
			FrequencyHz: 100,
			Kept:        []analysis.KeptTrack{{RowID: 5, Speed: 2.5}},
			Drops:       []filter.DropRecord{{RowID: 3, Speed: 0.1, Reason: filter.ReasonSpeed}},
		},
		{
			Label:       "0.0",
			FrequencyHz: 0,
			Kept:        []analysis.KeptTrack{{RowID: 4, Speed: 1.0}},
		},
	}

	var buf bytes.Buffer
	if err := WriteAllTracksCSV(&buf, results); err != nil {
		t.Fatalf("WriteAllTracksCSV failed: %v", err)
	}
	recs := parseCSV(t, &buf)

	want := [][]string{
		{"FREQUENCY", "ORIGINAL_POSITION", "MEAN_STRAIGHT_LINE_SPEED", "WAS_FILTERED"},
		{"0.0", "4", "1", "false"},
		{"100.0", "3", "0.1", "true"},
		{"100.0", "5", "2.5", "false"},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if recs[i][j] != want[i][j] {
				t.Errorf("record %d cell %d = %q, want %q", i, j, recs[i][j], want[i][j])
			}
		}
	}
}

// Package track holds the in-memory table of per-track motion metrics
// that the filter pipeline operates on. A table is loaded from one
// TrackMate-style CSV export and is owned by exactly one pipeline run.
package track

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Canonical metric column names, in the order every downstream consumer
// expects them. The order check at load time is load-bearing: several
// filter stages and the summary writers index columns positionally.
const (
	ColDisplacement      = "TRACK_DISPLACEMENT"
	ColMeanSpeed         = "TRACK_MEAN_SPEED"
	ColMedianSpeed       = "TRACK_MEDIAN_SPEED"
	ColMeanQuality       = "TRACK_MEAN_QUALITY"
	ColTotalDistance     = "TOTAL_DISTANCE_TRAVELED"
	ColStraightLineSpeed = "MEAN_STRAIGHT_LINE_SPEED"
	ColLinearity         = "LINEARITY_OF_FORWARD_PROGRESSION"

	// ColDuration is transient: it is only consulted by the duration
	// filter stage and is dropped from the table immediately after it.
	ColDuration = "TRACK_DURATION"
)

// MetricColumns lists the seven retained metric columns in canonical order.
var MetricColumns = []string{
	ColDisplacement,
	ColMeanSpeed,
	ColMedianSpeed,
	ColMeanQuality,
	ColTotalDistance,
	ColStraightLineSpeed,
	ColLinearity,
}

// metadataRows is the number of leading data rows in a TrackMate export
// that contain header/metadata text rather than measurements.
const metadataRows = 3

// Row is one tracked particle's measurements. ID is the row's index in
// the source file's data section, so the first measurement row after the
// metadata block has ID 3. Values are parallel to the table's columns.
type Row struct {
	ID     int
	Values []float64
}

// Table is an ordered collection of rows under a fixed column schema.
// Column order and identity never change after construction except for
// the one sanctioned mutation: dropping the transient duration column.
// Row membership only shrinks.
type Table struct {
	cols  []string
	index map[string]int
	rows  []Row
}

// Snapshot is an immutable deep copy of a table, used to undo a filter
// stage that would otherwise empty the table.
type Snapshot struct {
	cols []string
	rows []Row
}

// NewTable constructs a table from a column list and pre-parsed rows.
// Intended for tests and synthetic inputs; CSV inputs go through LoadCSV.
func NewTable(cols []string, rows []Row) *Table {
	t := &Table{cols: append([]string(nil), cols...), index: make(map[string]int, len(cols))}
	for i, c := range t.cols {
		t.index[c] = i
	}
	t.rows = make([]Row, len(rows))
	for i, r := range rows {
		t.rows[i] = Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
	}
	return t
}

// LoadCSVFile opens path and loads it via LoadCSV.
func LoadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// LoadCSV reads one condition's track export. All columns other than the
// seven metric columns and TRACK_DURATION are discarded, the retained
// metric columns must appear in exactly canonical order, and the first
// three data rows (metadata) are skipped. Metric cells must parse as
// numbers; duration cells parse leniently, with blanks and garbage
// becoming NaN for the duration stage to reject.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	keep := make([]string, 0, len(MetricColumns)+1)
	keepIdx := make([]int, 0, len(MetricColumns)+1)
	for i, name := range header {
		if isMetricColumn(name) || name == ColDuration {
			keep = append(keep, name)
			keepIdx = append(keepIdx, i)
		}
	}

	// The metric columns, once the rest are stripped away, must match the
	// canonical list in both membership and order.
	var metrics []string
	for _, name := range keep {
		if name != ColDuration {
			metrics = append(metrics, name)
		}
	}
	if len(metrics) != len(MetricColumns) {
		return nil, &SchemaError{Got: metrics, Want: MetricColumns}
	}
	for i, name := range metrics {
		if name != MetricColumns[i] {
			return nil, &SchemaError{Got: metrics, Want: MetricColumns}
		}
	}

	t := &Table{cols: keep, index: make(map[string]int, len(keep))}
	for i, c := range keep {
		t.index[c] = i
	}

	rowIdx := -1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rowIdx++
		if rowIdx < metadataRows {
			continue
		}

		row := Row{ID: rowIdx, Values: make([]float64, len(keep))}
		for j, src := range keepIdx {
			var cell string
			if src < len(rec) {
				cell = rec[src]
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				if keep[j] == ColDuration {
					v = math.NaN()
				} else {
					return nil, &ParseError{Column: keep[j], RowID: rowIdx, Cell: cell}
				}
			}
			row.Values[j] = v
		}
		t.rows = append(t.rows, row)
	}

	return t, nil
}

func isMetricColumn(name string) bool {
	for _, c := range MetricColumns {
		if name == c {
			return true
		}
	}
	return false
}

// Columns returns the current column schema in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// HasColumn reports whether the schema contains name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// RowCount returns the number of rows currently in the table.
func (t *Table) RowCount() int { return len(t.rows) }

// RowIDs returns the identities of the current rows in order.
func (t *Table) RowIDs() []int {
	ids := make([]int, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.ID
	}
	return ids
}

// Rows returns a deep copy of the current rows.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
	}
	return out
}

// ColumnValues returns the named column as floats, aligned with RowIDs.
func (t *Table) ColumnValues(name string) ([]float64, error) {
	ci, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("no column %q in table", name)
	}
	vals := make([]float64, len(t.rows))
	for i, r := range t.rows {
		vals[i] = r.Values[ci]
	}
	return vals, nil
}

// RemoveRows removes the rows with the given identities, preserving
// order of the survivors. IDs already absent are ignored.
func (t *Table) RemoveRows(ids []int) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := t.rows[:0]
	for _, r := range t.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	t.rows = kept
}

// DropColumn removes the named column from the schema and every row.
// Used once per pipeline run to discard the transient duration column.
func (t *Table) DropColumn(name string) {
	ci, ok := t.index[name]
	if !ok {
		return
	}
	t.cols = append(t.cols[:ci], t.cols[ci+1:]...)
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c] = i
	}
	for i := range t.rows {
		t.rows[i].Values = append(t.rows[i].Values[:ci], t.rows[i].Values[ci+1:]...)
	}
}

// Snapshot returns a deep copy of the table's current state.
func (t *Table) Snapshot() *Snapshot {
	s := &Snapshot{cols: append([]string(nil), t.cols...)}
	s.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		s.rows[i] = Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
	}
	return s
}

// Restore replaces the table's contents wholesale from a snapshot.
func (t *Table) Restore(s *Snapshot) {
	t.cols = append([]string(nil), s.cols...)
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c] = i
	}
	t.rows = make([]Row, len(s.rows))
	for i, r := range s.rows {
		t.rows[i] = Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
	}
}

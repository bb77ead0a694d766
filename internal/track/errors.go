package track

import (
	"fmt"
	"strings"
)

// SchemaError reports that an input's metric columns, after stripping
// everything else, did not match the canonical column list and order.
type SchemaError struct {
	Got  []string
	Want []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column schema mismatch: got [%s], want [%s]",
		strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// ParseError reports a cell that was expected to be numeric but was not.
type ParseError struct {
	Column string
	RowID  int
	Cell   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("non-numeric cell %q in column %s, row %d", e.Cell, e.Column, e.RowID)
}

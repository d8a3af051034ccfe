package strata

import (
	"fmt"
	"strings"
)

// Frame is the wide tabular view of signal data: one row per (entity, index),
// one column per signal. Column headers carry the unit annotation the way the
// platform renders them, e.g. "Oil Rate [bbl]".
type Frame struct {
	Columns []string
	Rows    []FrameRow
}

// FrameRow is one entity at one index. Cells align with Frame.Columns; a nil
// value is rendered as Null. The Index is zero for static frames.
type FrameRow struct {
	Entity string
	Index  Index
	Cells  []Value
}

// Cell returns the value under the named column, matching headers with or
// without their unit annotation.
func (f *Frame) Cell(row int, column string) (Value, bool) {
	if row < 0 || row >= len(f.Rows) {
		return Null, false
	}
	for i, c := range f.Columns {
		name, _ := splitColumnHeader(c)
		if c == column || name == column {
			if i < len(f.Rows[row].Cells) {
				return f.Rows[row].Cells[i], true
			}
			return Null, true
		}
	}
	return Null, false
}

// annotateColumn renders a column header with its unit suffix.
func annotateColumn(name, unit string) string {
	if unit == "" {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, unit)
}

// splitColumnHeader splits "Name [unit]" into its parts. A header without an
// annotation yields an empty unit.
func splitColumnHeader(header string) (name, unit string) {
	if !strings.HasSuffix(header, "]") {
		return header, ""
	}
	open := strings.LastIndex(header, " [")
	if open < 0 {
		return header, ""
	}
	return header[:open], header[open+2 : len(header)-1]
}

// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
)

// MissingValues are the cell contents read as missing.
var MissingValues = []string{"", "NA", "NaN", "nan", "N/A"}

// MissingCell is how missing cells are written.
const MissingCell = "NaN"

// Table holds a CSV table as strings, column-major: Cells[col][row], with Missing[col][row] set
// for missing cells.
type Table struct {
	Names   []string
	Cells   [][]string
	Missing [][]bool
}

// NewTable creates an empty table with the given columns and number of rows, all cells missing.
func NewTable(names []string, numRows int) Table {
	t := Table{
		Names:   names,
		Cells:   make([][]string, len(names)),
		Missing: make([][]bool, len(names)),
	}
	for col := range names {
		t.Cells[col] = make([]string, numRows)
		t.Missing[col] = make([]bool, numRows)
		for row := range numRows {
			t.Missing[col][row] = true
		}
	}
	return t
}

// NumRows in the table.
func (t Table) NumRows() int {
	if len(t.Cells) == 0 {
		return 0
	}
	return len(t.Cells[0])
}

// NumCols in the table.
func (t Table) NumCols() int { return len(t.Names) }

// ColumnIndex returns the index of the column with the given name, or -1.
func (t Table) ColumnIndex(name string) int {
	for ii, n := range t.Names {
		if n == name {
			return ii
		}
	}
	return -1
}

// Set cell (row, col) to value, marking it as present.
func (t Table) Set(row, col int, value string) {
	t.Cells[col][row] = value
	t.Missing[col][row] = false
}

// Get returns the value at (row, col) and whether it is present.
func (t Table) Get(row, col int) (string, bool) {
	return t.Cells[col][row], !t.Missing[col][row]
}

// SelectColumns returns a table with only the given column indices. Storage is shared.
func (t Table) SelectColumns(cols []int) Table {
	out := Table{
		Names:   make([]string, len(cols)),
		Cells:   make([][]string, len(cols)),
		Missing: make([][]bool, len(cols)),
	}
	for ii, col := range cols {
		out.Names[ii] = t.Names[col]
		out.Cells[ii] = t.Cells[col]
		out.Missing[ii] = t.Missing[col]
	}
	return out
}

// FloatColumn parses column col as numbers. Missing cells are returned as NaN-free zeros and
// flagged in the returned missing slice (shared with the table).
func (t Table) FloatColumn(col int) ([]float64, []bool, error) {
	values := make([]float64, t.NumRows())
	for row, cell := range t.Cells[col] {
		if t.Missing[col][row] {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, nil, imputeerr.Wrap(imputeerr.SchemaError, err,
				"continuous column %q has non-numeric value %q at row %d", t.Names[col], cell, row)
		}
		values[row] = v
	}
	return values, t.Missing[col], nil
}

// RawMask is the boolean missingness mask as read from the scenario mask file: Removed[col][row]
// is true where the value was removed from the table.
type RawMask struct {
	Names   []string
	Removed [][]bool
}

// NumRows in the mask.
func (m RawMask) NumRows() int {
	if len(m.Removed) == 0 {
		return 0
	}
	return len(m.Removed[0])
}

// SelectColumns returns a mask with only the given column indices. Storage is shared.
func (m RawMask) SelectColumns(cols []int) RawMask {
	out := RawMask{Names: make([]string, len(cols)), Removed: make([][]bool, len(cols))}
	for ii, col := range cols {
		out.Names[ii] = m.Names[col]
		out.Removed[ii] = m.Removed[col]
	}
	return out
}

// RemovedCount returns the number of removed cells.
func (m RawMask) RemovedCount() int {
	var count int
	for _, column := range m.Removed {
		for _, removed := range column {
			if removed {
				count++
			}
		}
	}
	return count
}

// AlignMask returns the mask with its columns reordered to match the table's columns by name.
// Mask columns not in the table are dropped. A table column absent from the mask is a
// SchemaError, and a different number of rows is a ShapeError.
func AlignMask(t Table, m RawMask) (RawMask, error) {
	if t.NumRows() != m.NumRows() {
		return RawMask{}, imputeerr.New(imputeerr.ShapeError,
			"mask has %d rows, table has %d", m.NumRows(), t.NumRows())
	}
	if slices.Equal(t.Names, m.Names) {
		return m, nil
	}
	byName := make(map[string]int, len(m.Names))
	for col, name := range m.Names {
		if _, found := byName[name]; !found {
			byName[name] = col
		}
	}
	cols := make([]int, t.NumCols())
	for ii, name := range t.Names {
		col, found := byName[name]
		if !found {
			return RawMask{}, imputeerr.New(imputeerr.SchemaError, "mask has no column %q", name)
		}
		cols[ii] = col
	}
	return m.SelectColumns(cols), nil
}

// ApplyMask returns the masked view of the table: a copy where every removed cell is missing.
// Mask columns are matched to the table's by name, see AlignMask.
func ApplyMask(t Table, m RawMask) (Table, error) {
	m, err := AlignMask(t, m)
	if err != nil {
		return Table{}, err
	}
	masked := Table{
		Names:   t.Names,
		Cells:   t.Cells,
		Missing: make([][]bool, t.NumCols()),
	}
	for col := range t.Names {
		masked.Missing[col] = make([]bool, t.NumRows())
		for row, missing := range t.Missing[col] {
			masked.Missing[col][row] = missing || m.Removed[col][row]
		}
	}
	return masked, nil
}

// FromDataFrame converts a gota DataFrame into a Table, using the DataFrame's NaN flags for missing cells.
func FromDataFrame(df dataframe.DataFrame) Table {
	names := df.Names()
	t := Table{
		Names:   names,
		Cells:   make([][]string, len(names)),
		Missing: make([][]bool, len(names)),
	}
	for col, name := range names {
		s := df.Col(name)
		t.Cells[col] = s.Records()
		t.Missing[col] = s.IsNaN()
		for row, missing := range t.Missing[col] {
			if missing {
				t.Cells[col][row] = ""
			}
		}
	}
	return t
}

// ToDataFrame converts the Table to a gota DataFrame of string series.
func (t Table) ToDataFrame() dataframe.DataFrame {
	columns := make([]series.Series, t.NumCols())
	for col, name := range t.Names {
		values := make([]string, t.NumRows())
		for row, cell := range t.Cells[col] {
			if t.Missing[col][row] {
				values[row] = MissingCell
			} else {
				values[row] = cell
			}
		}
		columns[col] = series.New(values, series.String, name)
	}
	return dataframe.New(columns...)
}

// ParseTable reads a CSV with a header line. All cells are kept as strings.
func ParseTable(r io.Reader) (Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(MissingValues))
	if df.Err != nil {
		return Table{}, errors.Wrap(df.Err, "failed to parse CSV")
	}
	return FromDataFrame(df), nil
}

// ReadTable reads the CSV file in path.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, imputeerr.Wrap(imputeerr.IOError, err, "failed to open table")
	}
	defer func() { _ = f.Close() }()
	t, err := ParseTable(f)
	if err != nil {
		return Table{}, imputeerr.Wrap(imputeerr.IOError, err, "failed to read table %q", path)
	}
	return t, nil
}

// WriteTable writes the table as CSV to path, creating the parent directories.
func WriteTable(path string, t Table) error {
	var buf bytes.Buffer
	if err := t.ToDataFrame().WriteCSV(&buf); err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "failed to serialize table for %q", path)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "failed to write table")
	}
	return nil
}

// ParseMaskCell interprets a mask cell: "1", "1.0", "true" (any case) or an empty cell mean
// removed, and "0", "0.0" or "false" mean kept.
func ParseMaskCell(cell string) (bool, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "false", "0":
		return false, nil
	case "", "true", "1":
		return true, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return false, errors.Errorf("invalid mask value %q", cell)
	}
	return v != 0, nil
}

// MaskFromTable converts a table read from a mask file into a RawMask. Missing cells (empty, NA,
// NaN) count as removed.
func MaskFromTable(t Table) (RawMask, error) {
	m := RawMask{Names: t.Names, Removed: make([][]bool, t.NumCols())}
	for col := range t.Names {
		m.Removed[col] = make([]bool, t.NumRows())
		for row, cell := range t.Cells[col] {
			if t.Missing[col][row] {
				m.Removed[col][row] = true
				continue
			}
			removed, err := ParseMaskCell(cell)
			if err != nil {
				return RawMask{}, imputeerr.Wrap(imputeerr.SchemaError, err,
					"mask column %q, row %d", t.Names[col], row)
			}
			m.Removed[col][row] = removed
		}
	}
	return m, nil
}

// ReadMask reads a mask CSV file.
func ReadMask(path string) (RawMask, error) {
	t, err := ReadTable(path)
	if err != nil {
		return RawMask{}, err
	}
	m, err := MaskFromTable(t)
	if err != nil {
		return RawMask{}, errors.WithMessagef(err, "reading mask %q", path)
	}
	return m, nil
}

// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package schema

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullCSV = `con_age,cat_region,con_income,cat_smoker
30,north,1000.5,yes
45,south,2000,no
27,north,1500.25,no
60,east,3000,yes
`

const maskCSV = `con_age,cat_region,con_income,cat_smoker
0,0,1,0
1,0,0,0
0,1,0,0
0,1,0,True
`

func parse(t *testing.T, contents string) Table {
	table, err := ParseTable(strings.NewReader(contents))
	require.NoError(t, err)
	return table
}

func parseMask(t *testing.T, contents string) RawMask {
	m, err := MaskFromTable(parse(t, contents))
	require.NoError(t, err)
	return m
}

func TestClassifyColumn(t *testing.T) {
	assert.Equal(t, RoleContinuous, ClassifyColumn("con_age"))
	assert.Equal(t, RoleContinuous, ClassifyColumn("conIncome"))
	assert.Equal(t, RoleCategorical, ClassifyColumn("cat_region"))
	assert.Equal(t, RoleUnknown, ClassifyColumn("id"))
}

func TestParseMaskCell(t *testing.T) {
	for cell, want := range map[string]bool{"1": true, "1.0": true, "True": true, "0": false, "False": false, "0.0": false, "": true} {
		got, err := ParseMaskCell(cell)
		require.NoError(t, err, "cell %q", cell)
		assert.Equal(t, want, got, "cell %q", cell)
	}
	_, err := ParseMaskCell("maybe")
	require.Error(t, err)
}

func TestEncodeLayout(t *testing.T) {
	full := parse(t, fullCSV)
	mask := parseMask(t, maskCSV)
	enc, err := Encode(full, mask, Options{})
	require.NoError(t, err)

	// Masked view: region lost "north" (row 2) and "east" (row 3): only north, south remain.
	region := enc.Schema.Columns[1].Kind.(Categorical)
	assert.Equal(t, []string{"north", "south"}, region.Categories)
	fullRegion := enc.FullSchema.Columns[1].Kind.(Categorical)
	assert.Equal(t, []string{"east", "north", "south"}, fullRegion.Categories)

	// Block widths: 1 + 2 + 1 + 2.
	assert.Equal(t, []int{1, 3, 4, 6}, enc.Schema.Boundaries)
	assert.Equal(t, enc.Schema.Width(), enc.Data.Width)
	var sum int
	for _, col := range enc.Schema.Columns {
		sum += col.Kind.Width()
	}
	assert.Equal(t, enc.Data.Width, sum)
	assert.Equal(t, enc.Data.Width, enc.Schema.Boundaries[len(enc.Schema.Boundaries)-1])

	// Scaling uses only the masked view: age max is 60 (45 removed), income min is 1500.25.
	age := enc.Schema.Columns[0].Kind.(Continuous)
	assert.Equal(t, Continuous{Min: 27, Max: 60}, age)
	income := enc.Schema.Columns[2].Kind.(Continuous)
	assert.Equal(t, 1500.25, income.Min)

	// Removed cells are NaN, and their whole block is unobserved.
	values, observed := enc.Data.Row(2)
	assert.True(t, math.IsNaN(float64(values[1])))
	assert.True(t, math.IsNaN(float64(values[2])))
	assert.Equal(t, []float32{1, 0, 0, 1, 1, 1}, observed)
	values, _ = enc.Data.Row(0)
	assert.Equal(t, float32(1), values[1], "north is index 0")
	assert.Equal(t, float32(0), values[2])
}

func TestObservedCountMatchesPresentCells(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for range 20 {
		numRows := 5 + rng.IntN(20)
		var b strings.Builder
		var mb strings.Builder
		b.WriteString("con_a,cat_b,con_c\n")
		mb.WriteString("con_a,cat_b,con_c\n")
		for range numRows {
			b.WriteString(strconv.Itoa(rng.IntN(100)) + ",v" + strconv.Itoa(rng.IntN(4)) + "," + strconv.Itoa(rng.IntN(7)) + "\n")
			for c := range 3 {
				if c > 0 {
					mb.WriteString(",")
				}
				if rng.Float64() < 0.3 {
					mb.WriteString("1")
				} else {
					mb.WriteString("0")
				}
			}
			mb.WriteString("\n")
		}
		enc, err := Encode(parse(t, b.String()), parseMask(t, mb.String()), Options{})
		require.NoError(t, err)

		// Each present cell contributes one 1 per position of its block.
		var want int
		for col, column := range enc.Schema.Columns {
			for _, missing := range enc.Masked.Missing[col] {
				if !missing {
					want += column.Kind.Width()
				}
			}
		}
		assert.Equal(t, want, enc.Data.ObservedCount())
		for ii, v := range enc.Data.Values {
			assert.Equal(t, enc.Data.Mask[ii] == 0, math.IsNaN(float64(v)))
		}
	}
}

func TestContinuousRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	var b strings.Builder
	b.WriteString("con_x\n")
	var originals []float64
	for range 200 {
		v := math.Round((rng.Float64()*2000-500)*1000) / 1000
		originals = append(originals, v)
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64) + "\n")
	}
	table := parse(t, b.String())
	fs, err := BuildSchema(table)
	require.NoError(t, err)
	require.False(t, fs.Columns[0].Kind.(Continuous).IsDegenerate())
	values, _, err := EncodeTable(fs, table)
	require.NoError(t, err)
	decoded, err := Decode(fs, values, table.NumRows())
	require.NoError(t, err)
	for row, v := range originals {
		got, ok := decoded.Get(row, 0)
		require.True(t, ok)
		gotV, err := strconv.ParseFloat(got, 64)
		require.NoError(t, err)
		assert.InDelta(t, RoundTo1(v), gotV, 0.1001, "row %d: %v", row, v)
	}
}

func TestCategoricalRoundTrip(t *testing.T) {
	table := parse(t, "cat_x\nb\na\nc\na\n")
	fs, err := BuildSchema(table)
	require.NoError(t, err)
	values, _, err := EncodeTable(fs, table)
	require.NoError(t, err)
	decoded, err := Decode(fs, values, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "a"}, decoded.Cells[0])
}

func TestDegenerateColumn(t *testing.T) {
	full := parse(t, "con_x,con_y\n5,1\n5,2\n5,3\n")
	mask := parseMask(t, "con_x,con_y\n0,1\n1,1\n0,1\n")
	enc, err := Encode(full, mask, Options{})
	require.NoError(t, err)
	assert.Equal(t, Continuous{Min: 5, Max: 5}, enc.Schema.Columns[0].Kind)
	assert.Equal(t, Continuous{}, enc.Schema.Columns[1].Kind, "no present values")
	values, _ := enc.Data.Row(0)
	assert.Equal(t, float32(0), values[0])
	values, _ = enc.Data.Row(1)
	assert.True(t, math.IsNaN(float64(values[0])))

	decoded, err := Decode(enc.Schema, []float32{0.3, 0.5, 0.9, 0.1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "5", "5"}, decoded.Cells[0])
}

func TestEmptyCategoricalFailsToDecode(t *testing.T) {
	full := parse(t, "con_x,cat_y\n1,a\n2,b\n")
	mask := parseMask(t, "con_x,cat_y\n0,1\n0,1\n")
	enc, err := Encode(full, mask, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, enc.Schema.Columns[1].Kind.Width())
	assert.Equal(t, 1, enc.Data.Width)

	_, err = Decode(enc.Schema, []float32{0.5, 0.5}, 2)
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.CodecError))
}

func TestUnknownColumns(t *testing.T) {
	full := parse(t, "id,con_x\n1,10\n2,20\n3,30\n")
	mask := parseMask(t, "id,con_x\n0,0\n0,1\n0,0\n")
	_, err := Encode(full, mask, Options{})
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.SchemaError))

	enc, err := Encode(full, mask, Options{SkipUnknown: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"con_x"}, enc.Schema.Names())
	assert.Equal(t, []string{"con_x"}, enc.Mask.Names)
	assert.Equal(t, 1, enc.Mask.RemovedCount())
}

func TestDuplicateColumns(t *testing.T) {
	full := NewTable([]string{"con_x", "con_x"}, 1)
	full.Set(0, 0, "1")
	full.Set(0, 1, "2")
	mask := RawMask{Names: full.Names, Removed: [][]bool{{false}, {false}}}
	_, err := Encode(full, mask, Options{})
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.SchemaError))
}

func TestMaskShapeMismatch(t *testing.T) {
	full := parse(t, "con_x\n1\n2\n")
	mask := parseMask(t, "con_x\n0\n")
	_, err := Encode(full, mask, Options{})
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.ShapeError))
}

func TestMaskColumnsMatchedByName(t *testing.T) {
	full := parse(t, "con_x,cat_y\n0,A\n10,A\n20,B\n30,B\n")
	// Removes con_x at row 2 and cat_y at row 3, with the columns in the other order.
	mask := parseMask(t, "cat_y,con_x\n0,0\n0,0\n0,1\n1,0\n")
	enc, err := Encode(full, mask, Options{})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false}, enc.Masked.Missing[0])
	assert.Equal(t, []bool{false, false, false, true}, enc.Masked.Missing[1])
	assert.Equal(t, []string{"con_x", "cat_y"}, enc.Mask.Names)
	assert.Equal(t, []bool{false, false, true, false}, enc.Mask.Removed[0])

	aligned, err := AlignMask(full, mask)
	require.NoError(t, err)
	assert.Equal(t, enc.Mask, aligned)
	diff, err := DiffTable(NewTable([]string{"con_x", "cat_y"}, 4), mask)
	require.NoError(t, err)
	assert.Equal(t, []string{"con_x", "cat_y"}, diff.Names)

	// Extra mask columns are ignored, missing ones are an error.
	extra := parseMask(t, "cat_y,other,con_x\n0,1,0\n0,1,0\n0,1,1\n1,1,0\n")
	aligned, err = AlignMask(full, extra)
	require.NoError(t, err)
	assert.Equal(t, enc.Mask, aligned)
	_, err = Encode(full, parseMask(t, "con_x\n0\n0\n1\n0\n"), Options{})
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.SchemaError))
}

func TestMissingMaskCellsAreRemoved(t *testing.T) {
	mask := parseMask(t, "con_x,cat_y\n0,NA\n,0\n1,0\n")
	assert.Equal(t, []bool{false, true, true}, mask.Removed[0])
	assert.Equal(t, []bool{true, false, false}, mask.Removed[1])
	assert.Equal(t, 3, mask.RemovedCount())
}

func TestDiffTableSparsity(t *testing.T) {
	full := parse(t, fullCSV)
	mask := parseMask(t, maskCSV)
	enc, err := Encode(full, mask, Options{})
	require.NoError(t, err)

	// Pretend the imputation is 0.5 everywhere.
	imputed := make([]float32, len(enc.Data.Values))
	for ii := range imputed {
		imputed[ii] = 0.5
	}
	decoded, err := Decode(enc.Schema, imputed, enc.Data.Rows)
	require.NoError(t, err)
	diff, err := DiffTable(decoded, enc.Mask)
	require.NoError(t, err)
	for col := range diff.Names {
		for row := range diff.NumRows() {
			_, present := diff.Get(row, col)
			assert.Equal(t, mask.Removed[col][row], present, "cell (%d, %d)", row, col)
		}
	}
	v, _ := diff.Get(0, 2)
	assert.Equal(t, "2250.1", v)
}

func TestReadWriteTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "0.csv")
	table := NewTable([]string{"con_x", "cat_y"}, 2)
	table.Set(0, 0, "1.5")
	table.Set(1, 1, "b")
	require.NoError(t, WriteTable(path, table))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "con_x,cat_y\n1.5,NaN\nNaN,b\n", string(contents))

	got, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, table.Names, got.Names)
	assert.Equal(t, table.Missing, got.Missing)
	v, ok := got.Get(0, 0)
	assert.True(t, ok)
	assert.Equal(t, "1.5", v)

	_, err = ReadTable(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.IOError))
}

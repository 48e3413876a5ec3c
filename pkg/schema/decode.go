// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package schema

import (
	"math"
	"strconv"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
)

// RoundTo1 rounds to one decimal place, the precision decoded continuous values are reported with.
func RoundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DecodeContinuous inverts the min-max scaling of v and rounds it to one decimal.
func DecodeContinuous(kind Continuous, v float64) float64 {
	return RoundTo1(v*(kind.Max-kind.Min) + kind.Min)
}

// FormatValue formats a decoded continuous value.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DecodeCategorical returns the category with the largest score in block.
func DecodeCategorical(kind Categorical, block []float32) (string, bool) {
	if len(block) == 0 || len(block) != kind.Width() {
		return "", false
	}
	best := 0
	for ii, v := range block {
		if v > block[best] {
			best = ii
		}
	}
	return kind.Categories[best], true
}

// Decode converts the encoded row-major values, shaped [numRows, fs.Width()], back into a table
// in the schema's column order, with every cell present.
//
// A categorical column without categories can't be decoded and returns a CodecError.
func Decode(fs FeatureSchema, values []float32, numRows int) (Table, error) {
	width := fs.Width()
	if len(values) != numRows*width {
		return Table{}, imputeerr.New(imputeerr.ShapeError,
			"decoding %d rows of width %d requires %d values, got %d", numRows, width, numRows*width, len(values))
	}
	t := NewTable(fs.Names(), numRows)
	for col, column := range fs.Columns {
		start, end := fs.Span(col)
		for row := range numRows {
			rowStart := row * width
			switch kind := column.Kind.(type) {
			case Continuous:
				t.Set(row, col, FormatValue(DecodeContinuous(kind, float64(values[rowStart+start]))))
			case Categorical:
				category, ok := DecodeCategorical(kind, values[rowStart+start:rowStart+end])
				if !ok {
					return Table{}, imputeerr.New(imputeerr.CodecError,
						"column %q has no known categories to decode row %d into", column.Name, row)
				}
				t.Set(row, col, category)
			}
		}
	}
	return t, nil
}

// DiffTable keeps only the cells of decoded that the mask marks as removed: every other cell
// becomes missing. The result holds exactly the imputed values.
func DiffTable(decoded Table, mask RawMask) (Table, error) {
	mask, err := AlignMask(decoded, mask)
	if err != nil {
		return Table{}, err
	}
	diff := NewTable(decoded.Names, decoded.NumRows())
	for col := range decoded.Names {
		for row, removed := range mask.Removed[col] {
			if !removed {
				continue
			}
			if value, ok := decoded.Get(row, col); ok {
				diff.Set(row, col, value)
			}
		}
	}
	return diff, nil
}

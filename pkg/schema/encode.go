// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package schema

import (
	"math"

	"github.com/hhsurvey/gainimpute/pkg/dataset"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
)

// Options for Encode.
type Options struct {
	// SkipUnknown drops columns with no known prefix, instead of failing with a SchemaError.
	SkipUnknown bool
}

// Encoding is the result of encoding a scenario.
type Encoding struct {
	// Data holds the encoded masked view (NaN where missing) and its observed mask.
	Data dataset.Dataset

	// Schema is built from the masked view only, and is the one used to decode imputations.
	Schema FeatureSchema

	// FullSchema is built from the ground truth. It is only used to score imputations.
	FullSchema FeatureSchema

	// Full is the ground-truth table, Masked the table with the removed cells missing.
	Full, Masked Table

	// Mask is the raw mask, restricted to the encoded columns.
	Mask RawMask
}

var nan32 = float32(math.NaN())

// Encode builds the masked view of full, the masked-view and full-view schemas, and the encoded
// masked view. Only the masked view is encoded: the encoded values never see the removed cells.
func Encode(full Table, mask RawMask, opts Options) (*Encoding, error) {
	roles, err := classifyAll(full.Names, opts.SkipUnknown)
	if err != nil {
		return nil, err
	}
	kept := make([]int, 0, len(roles))
	for col, role := range roles {
		if role != RoleUnknown {
			kept = append(kept, col)
		}
	}
	if len(kept) == 0 {
		return nil, imputeerr.New(imputeerr.SchemaError, "no continuous or categorical columns to impute")
	}
	if len(kept) != len(roles) {
		full = full.SelectColumns(kept)
	}
	mask, err = AlignMask(full, mask)
	if err != nil {
		return nil, err
	}
	masked, err := ApplyMask(full, mask)
	if err != nil {
		return nil, err
	}

	maskedSchema, err := BuildSchema(masked)
	if err != nil {
		return nil, errors.WithMessage(err, "building the masked-view schema")
	}
	fullSchema, err := BuildSchema(full)
	if err != nil {
		return nil, errors.WithMessage(err, "building the full-view schema")
	}
	values, observed, err := EncodeTable(maskedSchema, masked)
	if err != nil {
		return nil, err
	}
	data, err := dataset.New(masked.NumRows(), maskedSchema.Width(), values, observed)
	if err != nil {
		return nil, err
	}
	return &Encoding{
		Data:       data,
		Schema:     maskedSchema,
		FullSchema: fullSchema,
		Full:       full,
		Masked:     masked,
		Mask:       mask,
	}, nil
}

// BuildSchema classifies every column of the table and computes its scaling or category mapping
// from the table's present values.
func BuildSchema(t Table) (FeatureSchema, error) {
	columns := make([]Column, t.NumCols())
	for col, name := range t.Names {
		switch ClassifyColumn(name) {
		case RoleContinuous:
			values, missing, err := t.FloatColumn(col)
			if err != nil {
				return FeatureSchema{}, err
			}
			columns[col] = Column{Name: name, Kind: scaleOf(values, missing)}
		case RoleCategorical:
			columns[col] = Column{Name: name, Kind: NewCategorical(sortedCategories(t.Cells[col], t.Missing[col]))}
		default:
			return FeatureSchema{}, imputeerr.New(imputeerr.SchemaError, "column %q has no known prefix", name)
		}
	}
	return NewFeatureSchema(columns), nil
}

// scaleOf returns the min and max of the present values. Without any present value it returns
// the degenerate Continuous{0, 0}.
func scaleOf(values []float64, missing []bool) Continuous {
	c := Continuous{Min: math.Inf(1), Max: math.Inf(-1)}
	var count int
	for ii, v := range values {
		if missing[ii] {
			continue
		}
		c.Min = min(c.Min, v)
		c.Max = max(c.Max, v)
		count++
	}
	if count == 0 {
		return Continuous{}
	}
	return c
}

// EncodeTable encodes the table with the given schema, returning the flat row-major values (NaN
// where missing) and the observed mask (1 where present), both shaped [NumRows, fs.Width()].
//
// Degenerate continuous columns encode present values as 0. A categorical value absent from the
// schema's categories is a CodecError.
func EncodeTable(fs FeatureSchema, t Table) (values, observed []float32, err error) {
	if len(fs.Columns) != t.NumCols() {
		return nil, nil, imputeerr.New(imputeerr.ShapeError,
			"schema has %d columns, table has %d", len(fs.Columns), t.NumCols())
	}
	numRows, width := t.NumRows(), fs.Width()
	values = make([]float32, numRows*width)
	observed = make([]float32, numRows*width)
	for col, column := range fs.Columns {
		start, end := fs.Span(col)
		switch kind := column.Kind.(type) {
		case Continuous:
			floats, missing, err := t.FloatColumn(col)
			if err != nil {
				return nil, nil, err
			}
			for row, v := range floats {
				pos := row*width + start
				if missing[row] {
					values[pos] = nan32
					continue
				}
				observed[pos] = 1
				if !kind.IsDegenerate() {
					values[pos] = float32((v - kind.Min) / (kind.Max - kind.Min))
				}
			}
		case Categorical:
			for row, cell := range t.Cells[col] {
				rowStart := row * width
				if t.Missing[col][row] {
					for pos := rowStart + start; pos < rowStart+end; pos++ {
						values[pos] = nan32
					}
					continue
				}
				idx, found := kind.Index(cell)
				if !found {
					return nil, nil, imputeerr.New(imputeerr.CodecError,
						"column %q: value %q at row %d is not a known category", column.Name, cell, row)
				}
				for pos := rowStart + start; pos < rowStart+end; pos++ {
					observed[pos] = 1
				}
				values[rowStart+start+idx] = 1
			}
		}
	}
	return values, observed, nil
}

// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package evaluate scores imputed cells against the ground truth.
//
// Continuous columns are compared after z-score normalization with the ground-truth column's
// mean and standard deviation, and reported as one RMSE over all imputed continuous cells.
// Categorical columns are reported as the fraction of imputed cells matching the ground truth.
package evaluate

import (
	"math"
	"strconv"
	"strings"

	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Score of one imputation. Metrics are NaN when there were no imputed cells of that type.
type Score struct {
	ContinuousRMSE      float64
	CategoricalAccuracy float64
	NumContinuous       int
	NumCategorical      int
}

// zScaler normalizes a ground-truth column.
type zScaler struct {
	mean, std float64
}

// apply maps every value of a constant column to 0.
func (z zScaler) apply(v float64) float64 {
	if z.std == 0 || math.IsNaN(z.std) {
		return 0
	}
	return (v - z.mean) / z.std
}

// newZScaler uses the sample standard deviation of the present values.
func newZScaler(values []float64, missing []bool) zScaler {
	present := make([]float64, 0, len(values))
	for ii, v := range values {
		if !missing[ii] {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return zScaler{}
	}
	mean, std := stat.MeanStdDev(present, nil)
	return zScaler{mean: mean, std: std}
}

// sameCategory compares category values, numerically if both parse as numbers (so "1" matches "1.0").
func sameCategory(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}

// ScoreTables compares the imputed table against full at every cell the mask marks as removed.
// Mask and imputed columns are matched to full's by name. Columns without a known prefix are
// ignored.
func ScoreTables(full schema.Table, mask schema.RawMask, imputed schema.Table) (Score, error) {
	known := make([]int, 0, full.NumCols())
	for col, name := range full.Names {
		if schema.ClassifyColumn(name) != schema.RoleUnknown {
			known = append(known, col)
		}
	}
	full = full.SelectColumns(known)
	mask, err := schema.AlignMask(full, mask)
	if err != nil {
		return Score{}, err
	}
	if imputed.NumRows() != full.NumRows() {
		return Score{}, imputeerr.New(imputeerr.ShapeError,
			"imputed table has %d rows, ground truth has %d", imputed.NumRows(), full.NumRows())
	}
	var sqErr float64
	var correct int
	s := Score{}
	for col, name := range full.Names {
		role := schema.ClassifyColumn(name)
		impCol := imputed.ColumnIndex(name)
		if impCol < 0 {
			return Score{}, imputeerr.New(imputeerr.SchemaError, "imputed table is missing column %q", name)
		}
		switch role {
		case schema.RoleContinuous:
			truth, truthMissing, err := full.FloatColumn(col)
			if err != nil {
				return Score{}, err
			}
			scaler := newZScaler(truth, truthMissing)
			for row, removed := range mask.Removed[col] {
				if !removed || truthMissing[row] {
					continue
				}
				cell, ok := imputed.Get(row, impCol)
				if !ok {
					return Score{}, imputeerr.New(imputeerr.CodecError, "column %q row %d was not imputed", name, row)
				}
				pred, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
				if err != nil {
					return Score{}, imputeerr.Wrap(imputeerr.CodecError, err, "column %q row %d", name, row)
				}
				diff := scaler.apply(truth[row]) - scaler.apply(pred)
				sqErr += diff * diff
				s.NumContinuous++
			}
		case schema.RoleCategorical:
			for row, removed := range mask.Removed[col] {
				truth, present := full.Get(row, col)
				if !removed || !present {
					continue
				}
				pred, ok := imputed.Get(row, impCol)
				if ok && sameCategory(truth, pred) {
					correct++
				}
				s.NumCategorical++
			}
		}
	}
	s.ContinuousRMSE, s.CategoricalAccuracy = math.NaN(), math.NaN()
	if s.NumContinuous > 0 {
		s.ContinuousRMSE = math.Sqrt(sqErr / float64(s.NumContinuous))
	}
	if s.NumCategorical > 0 {
		s.CategoricalAccuracy = float64(correct) / float64(s.NumCategorical)
	}
	return s, nil
}

// ScoreEncoded decodes the imputed encoded values of a scenario and scores them. Categorical cells
// are compared under the full-view mapping: a predicted category the ground truth never had
// counts as wrong.
func ScoreEncoded(enc *schema.Encoding, imputed []float32) (Score, error) {
	decoded, err := schema.Decode(enc.Schema, imputed, enc.Data.Rows)
	if err != nil {
		return Score{}, err
	}
	for col, column := range enc.FullSchema.Columns {
		fullKind, ok := column.Kind.(schema.Categorical)
		if !ok {
			continue
		}
		for row := range decoded.NumRows() {
			if v, present := decoded.Get(row, col); present {
				if _, known := fullKind.Index(v); !known {
					decoded.Missing[col][row] = true
				}
			}
		}
	}
	s, err := ScoreTables(enc.Full, enc.Mask, decoded)
	if err != nil {
		return Score{}, errors.WithMessage(err, "scoring imputation")
	}
	return s, nil
}

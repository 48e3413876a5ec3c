// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset holds the encoded values of a table together with its observed mask.
//
// A Dataset is a value: Shuffle, WithNoise and Batches return new instances, and the values and the
// mask are always permuted together, so they can't drift out of row alignment.
package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
)

// Dataset is a row-major matrix of encoded values (NaN where missing) and its observed mask
// (1 where observed, 0 where missing), both shaped [Rows, Width].
type Dataset struct {
	Rows, Width int
	Values      []float32
	Mask        []float32
}

// New creates a Dataset, checking the flat slices match the given shape.
func New(rows, width int, values, mask []float32) (Dataset, error) {
	if rows < 0 || width < 0 {
		return Dataset{}, imputeerr.New(imputeerr.ShapeError, "invalid dataset shape [%d, %d]", rows, width)
	}
	if len(values) != rows*width || len(mask) != rows*width {
		return Dataset{}, imputeerr.New(imputeerr.ShapeError,
			"dataset shape [%d, %d] requires %d elements, got %d values and %d mask entries",
			rows, width, rows*width, len(values), len(mask))
	}
	return Dataset{Rows: rows, Width: width, Values: values, Mask: mask}, nil
}

// Row returns the values and mask of row ii. The returned slices share storage with the Dataset.
func (ds Dataset) Row(ii int) (values, mask []float32) {
	start := ii * ds.Width
	return ds.Values[start : start+ds.Width], ds.Mask[start : start+ds.Width]
}

// Take returns a new Dataset with the given rows, in the given order.
func (ds Dataset) Take(rows []int) Dataset {
	out := Dataset{
		Rows:   len(rows),
		Width:  ds.Width,
		Values: make([]float32, len(rows)*ds.Width),
		Mask:   make([]float32, len(rows)*ds.Width),
	}
	for to, from := range rows {
		values, mask := ds.Row(from)
		copy(out.Values[to*ds.Width:], values)
		copy(out.Mask[to*ds.Width:], mask)
	}
	return out
}

// Slice returns rows [start, end) as a new Dataset, copying the data.
func (ds Dataset) Slice(start, end int) Dataset {
	n := end - start
	out := Dataset{
		Rows:   n,
		Width:  ds.Width,
		Values: make([]float32, n*ds.Width),
		Mask:   make([]float32, n*ds.Width),
	}
	copy(out.Values, ds.Values[start*ds.Width:end*ds.Width])
	copy(out.Mask, ds.Mask[start*ds.Width:end*ds.Width])
	return out
}

// Shuffle returns a copy with rows permuted by one random permutation, applied to both values and mask.
func (ds Dataset) Shuffle(rng *rand.Rand) Dataset {
	return ds.Take(rng.Perm(ds.Rows))
}

// NoisePolicy configures how missing entries are filled before they are fed to the generator.
type NoisePolicy struct {
	// Zero fills missing entries with 0 instead of noise.
	Zero bool

	// Low and High bound the uniform noise used for missing entries.
	Low, High float32
}

// WithNoise returns a copy where NaN entries are replaced: with zero if policy.Zero, otherwise
// with `filled*mask + U(Low, High)*(1-mask)`, where filled has its NaN entries zeroed.
func (ds Dataset) WithNoise(rng *rand.Rand, policy NoisePolicy) Dataset {
	out := Dataset{
		Rows:   ds.Rows,
		Width:  ds.Width,
		Values: make([]float32, len(ds.Values)),
		Mask:   ds.Mask,
	}
	span := policy.High - policy.Low
	for ii, v := range ds.Values {
		if math.IsNaN(float64(v)) {
			v = 0
		}
		if policy.Zero {
			out.Values[ii] = v
			continue
		}
		noise := policy.Low + span*rng.Float32()
		m := ds.Mask[ii]
		out.Values[ii] = v*m + noise*(1-m)
	}
	return out
}

// ShuffleWithNoise shuffles the rows and then fills missing entries according to policy.
func (ds Dataset) ShuffleWithNoise(rng *rand.Rand, policy NoisePolicy) Dataset {
	return ds.Shuffle(rng).WithNoise(rng, policy)
}

// Batches splits the rows in Rows/batchSize batches of batchSize rows. The remaining rows are dropped.
// If there are fewer rows than batchSize, it returns one batch with all rows.
func (ds Dataset) Batches(batchSize int) []Dataset {
	if batchSize <= 0 || ds.Rows <= batchSize {
		return []Dataset{ds}
	}
	numBatches := ds.Rows / batchSize
	batches := make([]Dataset, numBatches)
	for ii := range batches {
		batches[ii] = ds.Slice(ii*batchSize, (ii+1)*batchSize)
	}
	return batches
}

// ObservedCount returns the number of observed (mask == 1) entries.
func (ds Dataset) ObservedCount() int {
	var count int
	for _, m := range ds.Mask {
		if m != 0 {
			count++
		}
	}
	return count
}

// Hint returns a partially revealed copy of mask: each entry is revealed with probability pHint,
// and only entries that are 1 in the mask can be revealed, so the hint is always a subset of the mask.
func Hint(rng *rand.Rand, mask []float32, pHint float64) []float32 {
	hint := make([]float32, len(mask))
	threshold := 1 - pHint
	for ii, m := range mask {
		if rng.Float64() > threshold {
			hint[ii] = m
		}
	}
	return hint
}

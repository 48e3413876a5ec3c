// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = float32(math.NaN())

// newTestDataset builds a [rows, 2] dataset where row ii holds (ii, 100+ii), with the second
// column missing on odd rows.
func newTestDataset(t *testing.T, rows int) Dataset {
	values := make([]float32, 0, rows*2)
	mask := make([]float32, 0, rows*2)
	for ii := range rows {
		values = append(values, float32(ii))
		mask = append(mask, 1)
		if ii%2 == 1 {
			values = append(values, nan)
			mask = append(mask, 0)
		} else {
			values = append(values, float32(100+ii))
			mask = append(mask, 1)
		}
	}
	ds, err := New(rows, 2, values, mask)
	require.NoError(t, err)
	return ds
}

func TestNew(t *testing.T) {
	_, err := New(2, 2, make([]float32, 4), make([]float32, 3))
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.ShapeError))
}

func TestShuffleKeepsRowsAligned(t *testing.T) {
	ds := newTestDataset(t, 20)
	rng := rand.New(rand.NewPCG(1, 2))
	shuffled := ds.Shuffle(rng)
	require.Equal(t, ds.Rows, shuffled.Rows)
	moved := false
	for ii := range shuffled.Rows {
		values, mask := shuffled.Row(ii)
		original := int(values[0])
		if original != ii {
			moved = true
		}
		if original%2 == 1 {
			assert.True(t, math.IsNaN(float64(values[1])))
			assert.Equal(t, float32(0), mask[1])
		} else {
			assert.Equal(t, float32(100+original), values[1])
			assert.Equal(t, float32(1), mask[1])
		}
	}
	assert.True(t, moved, "20 rows shuffled should have moved at least one")

	// Original is untouched.
	values, _ := ds.Row(3)
	assert.Equal(t, float32(3), values[0])
}

func TestWithNoise(t *testing.T) {
	ds := newTestDataset(t, 10)
	rng := rand.New(rand.NewPCG(3, 4))
	noisy := ds.WithNoise(rng, NoisePolicy{Low: 0, High: 0.1})
	for ii, v := range noisy.Values {
		require.False(t, math.IsNaN(float64(v)))
		if ds.Mask[ii] == 1 {
			assert.Equal(t, ds.Values[ii], v)
		} else {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.Less(t, v, float32(0.1))
		}
	}

	zeroed := ds.WithNoise(rng, NoisePolicy{Zero: true})
	for ii, v := range zeroed.Values {
		if ds.Mask[ii] == 0 {
			assert.Equal(t, float32(0), v)
		}
	}
	assert.True(t, math.IsNaN(float64(ds.Values[3])), "WithNoise must not modify the receiver")
}

func TestBatches(t *testing.T) {
	ds := newTestDataset(t, 10)
	batches := ds.Batches(3)
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Equal(t, 3, b.Rows)
		assert.Len(t, b.Values, 6)
	}
	values, _ := batches[2].Row(2)
	assert.Equal(t, float32(8), values[0])

	// Fewer rows than the batch size: a single batch with everything.
	small := ds.Batches(64)
	require.Len(t, small, 1)
	assert.Equal(t, 10, small[0].Rows)
}

func TestHintIsSubsetOfMask(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	mask := make([]float32, 1000)
	for ii := range mask {
		if rng.Float64() < 0.7 {
			mask[ii] = 1
		}
	}
	for _, pHint := range []float64{0, 0.5, 0.8, 1} {
		hint := Hint(rng, mask, pHint)
		var revealed, observed int
		for ii, h := range hint {
			if h == 1 {
				require.Equal(t, float32(1), mask[ii], "hint revealed a missing position at %d", ii)
				revealed++
			}
			if mask[ii] == 1 {
				observed++
			}
		}
		switch pHint {
		case 0:
			assert.Zero(t, revealed)
		case 1:
			assert.Equal(t, observed, revealed)
		default:
			assert.InDelta(t, pHint, float64(revealed)/float64(observed), 0.1)
		}
	}
}

func TestObservedCount(t *testing.T) {
	ds := newTestDataset(t, 5)
	// 5 in the first column, 3 (rows 0, 2, 4) in the second.
	assert.Equal(t, 8, ds.ObservedCount())
}

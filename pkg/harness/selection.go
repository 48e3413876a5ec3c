// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package harness

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hhsurvey/gainimpute/pkg/scenario"
	"github.com/pkg/errors"
)

// Policy selects which sample-test series decides the number of epochs.
type Policy int

const (
	// ContinuousFirst picks the epoch with the lowest mean continuous error.
	ContinuousFirst Policy = iota

	// CategoricalFirst picks the epoch with the highest mean categorical accuracy.
	CategoricalFirst
)

var policyNames = []string{"continuous_first", "categorical_first"}

// String implements fmt.Stringer, returning the name accepted by ParsePolicy.
func (p Policy) String() string {
	if int(p) >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "continuous_first" or "categorical_first".
func ParsePolicy(s string) (Policy, error) {
	for ii, name := range policyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Policy(ii), nil
		}
	}
	return 0, errors.Errorf("unknown epoch selection policy %q, valid values are %q", s, policyNames)
}

// MeanSeries returns the element-wise mean of the runs, ignoring NaN entries. Runs may have
// different lengths: the result is as long as the longest one. Positions with no finite value
// are NaN.
func MeanSeries(runs [][]float64) []float64 {
	var length int
	for _, run := range runs {
		length = max(length, len(run))
	}
	sums := make([]float64, length)
	counts := make([]int, length)
	for _, run := range runs {
		for ii, v := range run {
			if math.IsNaN(v) {
				continue
			}
			sums[ii] += v
			counts[ii]++
		}
	}
	for ii := range sums {
		if counts[ii] == 0 {
			sums[ii] = math.NaN()
		} else {
			sums[ii] /= float64(counts[ii])
		}
	}
	return sums
}

// bestIndex returns the 0-based position of the lowest (or highest if maximize) non-NaN value,
// the first one in case of ties, or -1 if there is none.
func bestIndex(series []float64, maximize bool) int {
	best := -1
	for ii, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || (maximize && v > series[best]) || (!maximize && v < series[best]) {
			best = ii
		}
	}
	return best
}

// SelectBestIndex returns the selected number of epochs (1-based) given the mean per-epoch
// continuous error and categorical accuracy series.
//
// If the series chosen by the policy has no finite value (e.g. the scenario has no missing
// continuous cells), the other series decides. It returns an error if neither has one.
func SelectBestIndex(policy Policy, continuous, categorical []float64) (int, error) {
	conIdx, catIdx := bestIndex(continuous, false), bestIndex(categorical, true)
	switch policy {
	case ContinuousFirst:
		if conIdx < 0 {
			conIdx = catIdx
		}
		if conIdx >= 0 {
			return conIdx + 1, nil
		}
	case CategoricalFirst:
		if catIdx < 0 {
			catIdx = conIdx
		}
		if catIdx >= 0 {
			return catIdx + 1, nil
		}
	default:
		return 0, errors.Errorf("invalid policy %s", policy)
	}
	return 0, errors.New("no finite continuous error or categorical accuracy to select the number of epochs from")
}

// EpochKey indexes an EpochTable.
type EpochKey struct {
	Mechanism scenario.Mechanism
	Ratio     int
}

// EpochTable holds the number of epochs selected for each (mechanism, ratio). It is immutable
// once built by SampleTest.
type EpochTable struct {
	epochs map[EpochKey]int
}

// NewEpochTable copies the given selections into an EpochTable.
func NewEpochTable(epochs map[EpochKey]int) EpochTable {
	t := EpochTable{epochs: make(map[EpochKey]int, len(epochs))}
	for k, v := range epochs {
		t.epochs[k] = v
	}
	return t
}

// Epochs returns the number of epochs selected for the (mechanism, ratio), and whether there is one.
func (t EpochTable) Epochs(mech scenario.Mechanism, ratio int) (int, bool) {
	n, found := t.epochs[EpochKey{Mechanism: mech, Ratio: ratio}]
	return n, found
}

// Len returns the number of selections.
func (t EpochTable) Len() int { return len(t.epochs) }

// Keys returns the keys in mechanism then ratio order.
func (t EpochTable) Keys() []EpochKey {
	keys := make([]EpochKey, 0, len(t.epochs))
	for k := range t.epochs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b EpochKey) int {
		return cmp.Or(cmp.Compare(a.Mechanism, b.Mechanism), cmp.Compare(a.Ratio, b.Ratio))
	})
	return keys
}

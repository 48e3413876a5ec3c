// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package schema classifies survey columns as continuous or categorical, encodes a masked table
// into the dense representation used for training, and decodes imputed values back into the
// original units and categories.
//
// Column roles are taken from the column name prefix: "con" for continuous and "cat" for
// categorical. The decision is made once, when the FeatureSchema is built, and carried as a
// ColumnKind from then on.
package schema

import (
	"fmt"
	"strings"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/hhsurvey/gainimpute/pkg/support/sets"
)

const (
	// ContinuousPrefix marks continuous columns.
	ContinuousPrefix = "con"

	// CategoricalPrefix marks categorical columns.
	CategoricalPrefix = "cat"
)

// ColumnKind is either Continuous or Categorical.
type ColumnKind interface {
	// Width of the encoded block for the column.
	Width() int

	fmt.Stringer
	isColumnKind()
}

// Continuous columns are min-max scaled to [0, 1].
// If Min == Max the column is degenerate and encodes to all zeros.
type Continuous struct {
	Min, Max float64
}

// Width implements ColumnKind. It is always 1.
func (Continuous) Width() int { return 1 }

// String implements fmt.Stringer.
func (c Continuous) String() string { return fmt.Sprintf("continuous[%g, %g]", c.Min, c.Max) }

// IsDegenerate returns whether the column had a single value (or none) when it was scaled.
func (c Continuous) IsDegenerate() bool { return c.Min == c.Max }

func (Continuous) isColumnKind() {}

// Categorical columns are one-hot encoded, one position per category.
type Categorical struct {
	// Categories in index order.
	Categories []string
	index      map[string]int
}

// NewCategorical creates a Categorical kind with the given categories, in that index order.
func NewCategorical(categories []string) Categorical {
	c := Categorical{Categories: categories, index: make(map[string]int, len(categories))}
	for ii, category := range categories {
		c.index[category] = ii
	}
	return c
}

// Width implements ColumnKind: the number of categories.
func (c Categorical) Width() int { return len(c.Categories) }

// String implements fmt.Stringer.
func (c Categorical) String() string {
	return fmt.Sprintf("categorical{%s}", strings.Join(c.Categories, ","))
}

// Index of the category, and whether it is known.
func (c Categorical) Index(category string) (int, bool) {
	idx, found := c.index[category]
	return idx, found
}

func (Categorical) isColumnKind() {}

// Column is a named column and its kind.
type Column struct {
	Name string
	Kind ColumnKind
}

// FeatureSchema describes the encoded layout of a table: each column occupies a contiguous span
// of Kind.Width() encoded positions, and Boundaries[i] is the end offset of column i's span.
type FeatureSchema struct {
	Columns    []Column
	Boundaries []int
}

// NewFeatureSchema creates a FeatureSchema from the columns, computing the boundaries.
func NewFeatureSchema(columns []Column) FeatureSchema {
	fs := FeatureSchema{Columns: columns, Boundaries: make([]int, len(columns))}
	var end int
	for ii, col := range columns {
		end += col.Kind.Width()
		fs.Boundaries[ii] = end
	}
	return fs
}

// Width of the encoded representation.
func (fs FeatureSchema) Width() int {
	if len(fs.Boundaries) == 0 {
		return 0
	}
	return fs.Boundaries[len(fs.Boundaries)-1]
}

// Span returns the [start, end) encoded positions of column ii.
func (fs FeatureSchema) Span(ii int) (start, end int) {
	if ii > 0 {
		start = fs.Boundaries[ii-1]
	}
	return start, fs.Boundaries[ii]
}

// Names of the columns, in order.
func (fs FeatureSchema) Names() []string {
	names := make([]string, len(fs.Columns))
	for ii, col := range fs.Columns {
		names[ii] = col.Name
	}
	return names
}

// Block describes the encoded span of one column, as needed by the reconstruction loss.
type Block struct {
	Start, End  int
	Categorical bool
}

// Blocks returns the encoded spans of all columns. Zero-width blocks are included.
func (fs FeatureSchema) Blocks() []Block {
	blocks := make([]Block, len(fs.Columns))
	for ii, col := range fs.Columns {
		start, end := fs.Span(ii)
		_, isCat := col.Kind.(Categorical)
		blocks[ii] = Block{Start: start, End: end, Categorical: isCat}
	}
	return blocks
}

// Role of a column, as given by its name prefix.
type Role int

const (
	// RoleUnknown is for columns with neither prefix.
	RoleUnknown Role = iota
	RoleContinuous
	RoleCategorical
)

// ClassifyColumn returns the role of the column from its name prefix.
func ClassifyColumn(name string) Role {
	switch {
	case strings.HasPrefix(name, ContinuousPrefix):
		return RoleContinuous
	case strings.HasPrefix(name, CategoricalPrefix):
		return RoleCategorical
	default:
		return RoleUnknown
	}
}

// classifyAll returns the role of each column. Unknown columns are an error, unless skipUnknown is
// set, in which case they are returned as RoleUnknown for the caller to drop.
func classifyAll(names []string, skipUnknown bool) ([]Role, error) {
	roles := make([]Role, len(names))
	var unknown []string
	seen := sets.Make[string](len(names))
	for ii, name := range names {
		if !seen.Insert(name) {
			return nil, imputeerr.New(imputeerr.SchemaError, "column %q appears more than once", name)
		}
		roles[ii] = ClassifyColumn(name)
		if roles[ii] == RoleUnknown {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 && !skipUnknown {
		return nil, imputeerr.New(imputeerr.SchemaError,
			"columns %q have no %q or %q prefix", unknown, ContinuousPrefix, CategoricalPrefix)
	}
	return roles, nil
}

// sortedCategories returns the distinct values, sorted, so the index assignment is reproducible.
func sortedCategories(values []string, missing []bool) []string {
	seen := sets.Make[string](0)
	for ii, v := range values {
		if !missing[ii] {
			seen.Insert(v)
		}
	}
	return sets.Sorted(seen)
}

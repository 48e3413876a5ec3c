// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implements a set of comparable values on top of a map.
package sets

import (
	"cmp"
	"slices"
)

// Set of values of type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set with room for capacity elements.
func Make[T comparable](capacity int) Set[T] {
	return make(Set[T], capacity)
}

// Has returns whether v is in the set.
func (s Set[T]) Has(v T) bool {
	_, found := s[v]
	return found
}

// Insert adds v to the set. It returns false if v was already there.
func (s Set[T]) Insert(v T) bool {
	if s.Has(v) {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Sorted returns the elements of the set in increasing order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	values := make([]T, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	slices.Sort(values)
	return values
}

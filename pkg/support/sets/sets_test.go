// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](3)
	assert.True(t, s.Insert("B"))
	assert.True(t, s.Insert("A"))
	assert.False(t, s.Insert("B"))
	assert.True(t, s.Has("A"))
	assert.False(t, s.Has("C"))
	assert.Equal(t, []string{"A", "B"}, Sorted(s))
	assert.Empty(t, Sorted(Make[int](0)))
}

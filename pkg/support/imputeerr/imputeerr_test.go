// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package imputeerr_test

import (
	"os"
	"testing"

	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	err := imputeerr.New(imputeerr.CodecError, "column %q has no categories", "cat_x")
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.CodecError))
	assert.False(t, imputeerr.Is(err, imputeerr.SchemaError))
	assert.Equal(t, imputeerr.CodecError, imputeerr.KindOf(err))
	assert.Contains(t, err.Error(), "CodecError")
	assert.Contains(t, err.Error(), "cat_x")

	// Kind survives further wrapping.
	wrapped := errors.WithMessage(err, "scenario MCAR/10/1")
	assert.True(t, errors.Is(wrapped, imputeerr.CodecError))
	assert.Equal(t, imputeerr.CodecError, imputeerr.KindOf(wrapped))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, imputeerr.Wrap(imputeerr.IOError, nil, "nothing"))

	_, statErr := os.Stat("/this/path/does/not/exist")
	err := imputeerr.Wrap(imputeerr.IOError, statErr, "reading mask")
	assert.True(t, imputeerr.Is(err, imputeerr.IOError))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, imputeerr.Unknown, imputeerr.KindOf(statErr))
	assert.Equal(t, "ShapeError", imputeerr.ShapeError.String())
}

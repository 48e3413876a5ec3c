// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	got, err := ReplaceTildeInDir("~/data_gain")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "data_gain"), got)

	got, err = ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "0.csv")
	exists, err := FileExists(target)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, WriteFileAtomic(target, []byte("x,y\n")))
	exists, err = FileExists(target)
	require.NoError(t, err)
	assert.True(t, exists)
	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(contents))

	// Overwrites.
	require.NoError(t, WriteFileAtomic(target, []byte("z\n")))
	contents, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "z\n", string(contents))
}

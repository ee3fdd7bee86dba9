package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDuration("3s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 1234 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id)

	id, err = ParseID("5.000000000000000000e+00")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = ParseID("5.5")
	assert.Error(t, err)
	_, err = ParseID("abc")
	assert.Error(t, err)
}

func TestOutputManager(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")
	om := NewOutputManager(base)
	require.NoError(t, om.EnsureOutputDirExists())

	assert.Equal(t, filepath.Join(base, "table.csv"), om.Path("../../table.csv"))

	dir, err := om.SubDir("spectra")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "spectra_000042.txt"), om.SpectrumFile(dir, 42))

	p := CutoutFile(dir, 7)
	assert.False(t, Exists(p))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	assert.True(t, Exists(p))
	assert.False(t, Exists(dir))
}

package analysis

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/internal/tng"
	"subhalo-pipeline/pkg/utils"
)

func TestSSFRProcess(t *testing.T) {
	center := [3]float64{100, 200, 300}
	sub := &tng.Subhalo{ID: 8, PosX: center[0], PosY: center[1], PosZ: center[2]}

	gas := &snapshot.Gas{
		Coordinates:       [][3]float64{offset(center, 0, 0.5), offset(center, 2, -1.5), offset(center, 1, 10)},
		StarFormationRate: []float64{1, 2, 5},
	}
	stars := &snapshot.Stars{
		// the second star sits off-centre in y only
		Coordinates: [][3]float64{center, offset(center, 1, 1), offset(center, 0, 3)},
		Masses:      []float64{0.05, 0.05, 1},
	}
	fetch := &fakeFetcher{subhalos: map[model.SubhaloID]*tng.Subhalo{8: sub}}
	reader := &fakeReader{
		gas:   map[string]*snapshot.Gas{utils.CutoutFile("gas", 8): gas},
		stars: map[string]*snapshot.Stars{utils.CutoutFile("stars", 8): stars},
	}
	p, err := NewSSFR(newEnv(fetch, reader), SSFROptions{ApertureKpc: 2, GasDir: "gas", StellarDir: "stars"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SFR", "sSFR"}, p.Columns())

	vals, err := p.Process(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, vals, 2)

	mstar := 0.1 * 1e10 / illustris.LittleH
	assert.InDelta(t, 3, vals[0], 1e-12)
	assert.InEpsilon(t, 3/mstar, vals[1], 1e-12)
}

func TestSSFRNoStarsInAperture(t *testing.T) {
	center := [3]float64{100, 200, 300}
	sub := &tng.Subhalo{ID: 8, PosX: center[0], PosY: center[1], PosZ: center[2]}
	fetch := &fakeFetcher{subhalos: map[model.SubhaloID]*tng.Subhalo{8: sub}}
	reader := &fakeReader{
		gas: map[string]*snapshot.Gas{utils.CutoutFile("gas", 8): {
			Coordinates:       [][3]float64{center},
			StarFormationRate: []float64{1},
		}},
		stars: map[string]*snapshot.Stars{utils.CutoutFile("stars", 8): {
			Coordinates: [][3]float64{offset(center, 0, 50)},
			Masses:      []float64{1},
		}},
	}
	p, err := NewSSFR(newEnv(fetch, reader), SSFROptions{ApertureKpc: 2, GasDir: "gas", StellarDir: "stars"})
	require.NoError(t, err)

	vals, err := p.Process(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vals[0])
	assert.True(t, math.IsNaN(vals[1]))
}

func TestSSFRMissingStellarCutout(t *testing.T) {
	fetch := &fakeFetcher{subhalos: map[model.SubhaloID]*tng.Subhalo{8: {ID: 8}}}
	reader := &fakeReader{gas: map[string]*snapshot.Gas{utils.CutoutFile("gas", 8): {}}}
	p, err := NewSSFR(newEnv(fetch, reader), SSFROptions{ApertureKpc: 2, GasDir: "gas", StellarDir: "stars"})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), 8)
	assert.ErrorIs(t, err, model.ErrMissingData)
}

func ssfrTable() *model.Table {
	return &model.Table{
		Columns: []string{ColumnSFR, ColumnSSFR},
		Rows: []model.Row{
			{ID: 1, Status: model.StatusOK, Values: []float64{0.5, 2e-11}},
			{ID: 2, Status: model.StatusOK, Values: []float64{0.01, 1e-12}},
			{ID: 3, Status: model.StatusMissing, Values: []float64{math.NaN(), math.NaN()}},
			{ID: 4, Status: model.StatusOK, Values: []float64{0, math.NaN()}},
		},
	}
}

func TestSelectActive(t *testing.T) {
	sample := model.Catalogue{
		1: {"mass": 3.5},
		2: {"mass": 1.0},
		3: {"mass": 2.0},
	}
	active, err := SelectActive(ssfrTable(), sample, 1e-11)
	require.NoError(t, err)

	require.Len(t, active, 1)
	assert.Equal(t, model.Properties{"mass": 3.5, "inst_sSFR": 2e-11}, active[1])
	assert.NotContains(t, sample[1], "inst_sSFR")

	_, err = SelectActive(&model.Table{Columns: []string{"x"}}, sample, 1e-11)
	assert.Error(t, err)
}

func TestInstMappingRoundTrip(t *testing.T) {
	m, err := InstMapping(ssfrTable())
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.NotContains(t, m, model.SubhaloID(3))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"4":{"SFR":0,"sSFR":null}`)

	path := filepath.Join(t.TempDir(), "all.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	inst, err := LoadInstSFR(path)
	require.NoError(t, err)
	assert.Equal(t, map[model.SubhaloID]float64{1: 0.5, 2: 0.01, 4: 0}, inst)
}

func TestLoadInstSFRMissingFile(t *testing.T) {
	_, err := LoadInstSFR(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

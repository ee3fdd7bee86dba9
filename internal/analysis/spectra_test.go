package analysis

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/internal/tng"
	"subhalo-pipeline/pkg/utils"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []SFH
	err   error
}

func (s *fakeSynth) Synthesize(_ context.Context, sfh SFH) (*Spectrum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sfh)
	if s.err != nil {
		return nil, s.err
	}
	return &Spectrum{Wave: []float64{1000, 2000, 3000}, Flux: []float64{1, math.NaN(), 2}}, nil
}

func TestMetallicityEdges(t *testing.T) {
	edges := MetallicityEdges(MetallicityCentres)
	require.Len(t, edges, len(MetallicityCentres))
	assert.InDelta(t, -2.275, edges[0], 1e-12)
	assert.InDelta(t, 0.325, edges[13], 1e-12)
	assert.Equal(t, 9.0, edges[15])
}

func spectraFixture(t *testing.T) (*fakeFetcher, *fakeReader) {
	t.Helper()
	center := [3]float64{500, 500, 500}
	sub := &tng.Subhalo{ID: 12, PosX: center[0], PosY: center[1], PosZ: center[2]}
	stars := &snapshot.Stars{
		Coordinates: [][3]float64{
			center,
			offset(center, 1, 1),
			offset(center, 2, 0.5), // wind
			offset(center, 0, 5),   // outside the aperture
		},
		FormationTime: []float64{1, 0.5, -0.5, 1},
		InitialMass:   []float64{0.001, 0.001, 0.001, 0.001},
		Masses:        []float64{0.0008, 0.0008, 0.0008, 0.0008},
		Metallicity:   []float64{2 * 0.0127, 2 * 0.0127, 0.0127, 0.0127},
	}
	return &fakeFetcher{subhalos: map[model.SubhaloID]*tng.Subhalo{12: sub}},
		&fakeReader{stars: map[string]*snapshot.Stars{utils.CutoutFile("stars", 12): stars}}
}

func TestSpectraProcess(t *testing.T) {
	fetch, reader := spectraFixture(t)
	synth := &fakeSynth{}
	outDir := t.TempDir()

	p, err := NewSpectra(newEnv(fetch, reader), synth, SpectraOptions{
		StellarDir:       "stars",
		OutputDir:        outDir,
		ApertureKpc:      2,
		SolarMetallicity: 0.0127,
		Tage:             14,
		Params:           map[string]float64{"imf_type": 1},
		InstSFR:          map[model.SubhaloID]float64{12: 4.2},
	})
	require.NoError(t, err)

	vals, err := p.Process(context.Background(), 12)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 0.002}, vals, 1e-12)

	require.Len(t, synth.calls, len(MetallicityCentres)-1)
	assert.Equal(t, -2.05, synth.calls[0].LogZsol)
	assert.Equal(t, 0.5, synth.calls[len(synth.calls)-1].LogZsol)

	for _, c := range synth.calls {
		require.Len(t, c.SFR, 1400)
		require.Len(t, c.Time, 1400)
		assert.Equal(t, 4.2, c.SFR[1399])
		assert.Equal(t, 14.0, c.Tage)
		assert.Equal(t, 1.0, c.Params["imf_type"])

		var formed float64
		for j, s := range c.SFR[:1399] {
			formed += s * 0.01 * 1e9
			if c.LogZsol != 0.25 {
				assert.Zero(t, s, "logzsol=%g bin %d", c.LogZsol, j)
			}
		}
		if c.LogZsol == 0.25 {
			assert.InEpsilon(t, 2e7, formed, 1e-9)
			assert.InDelta(t, 1.0, c.SFR[1375], 1e-9)
			assert.InDelta(t, 1.0, c.SFR[596], 1e-9)
		}
	}

	data, err := os.ReadFile(p.SpectrumPath(12))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1.000000000000000000e+03 2.000000000000000000e+03 3.000000000000000000e+03", lines[0])
	assert.Equal(t, "1.500000000000000000e+01 0.000000000000000000e+00 3.000000000000000000e+01", lines[1])
	assert.True(t, strings.HasSuffix(p.SpectrumPath(12), "spectra_000012.txt"))
}

func TestSpectraWithoutInstSFRIsMissing(t *testing.T) {
	fetch, reader := spectraFixture(t)
	synth := &fakeSynth{}
	p, err := NewSpectra(newEnv(fetch, reader), synth, SpectraOptions{
		StellarDir:       "stars",
		OutputDir:        t.TempDir(),
		ApertureKpc:      2,
		SolarMetallicity: 0.0127,
		Tage:             14,
		InstSFR:          map[model.SubhaloID]float64{99: 1},
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), 12)
	assert.ErrorIs(t, err, model.ErrMissingData)
	assert.Empty(t, synth.calls)
}

func TestSpectraWithoutInstKeepsFormationHistory(t *testing.T) {
	fetch, reader := spectraFixture(t)
	synth := &fakeSynth{}
	p, err := NewSpectra(newEnv(fetch, reader), synth, SpectraOptions{
		StellarDir:       "stars",
		OutputDir:        t.TempDir(),
		ApertureKpc:      2,
		SolarMetallicity: 0.0127,
		Tage:             14,
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), 12)
	require.NoError(t, err)
	for _, c := range synth.calls {
		assert.Zero(t, c.SFR[1399])
	}
}

func TestSpectraSynthFailure(t *testing.T) {
	fetch, reader := spectraFixture(t)
	synth := &fakeSynth{err: errors.New("sps exploded")}
	p, err := NewSpectra(newEnv(fetch, reader), synth, SpectraOptions{
		StellarDir:       "stars",
		OutputDir:        t.TempDir(),
		ApertureKpc:      2,
		SolarMetallicity: 0.0127,
		Tage:             14,
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), 12)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sps exploded")
	assert.Len(t, synth.calls, 1)
	assert.NoFileExists(t, p.SpectrumPath(12))
}

func TestNewSpectraValidation(t *testing.T) {
	env := newEnv(&fakeFetcher{}, &fakeReader{})
	_, err := NewSpectra(env, nil, SpectraOptions{ApertureKpc: 2, SolarMetallicity: 0.0127, OutputDir: t.TempDir()})
	assert.Error(t, err)
	_, err = NewSpectra(env, &fakeSynth{}, SpectraOptions{ApertureKpc: 0, SolarMetallicity: 0.0127, OutputDir: t.TempDir()})
	assert.Error(t, err)
}

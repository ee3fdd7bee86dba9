package analysis

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/pkg/utils"
)

// MetallicityCentres are the log10(Z/Zsun) grid points of the MILES library.
// Stars below the first midpoint are not synthesised.
var MetallicityCentres = []float64{
	-2.5, -2.05, -1.75, -1.45, -1.15, -0.85, -0.55, -0.35,
	-0.25, -0.15, -0.05, 0.05, 0.15, 0.25, 0.4, 0.5,
}

// MetallicityEdges returns the upper edge of every metallicity bin: the
// midpoints between neighbouring centres, with the last bin open ended.
func MetallicityEdges(centres []float64) []float64 {
	edges := make([]float64, len(centres))
	for i := 0; i < len(centres)-1; i++ {
		edges[i] = centres[i] + (centres[i+1]-centres[i])/2
	}
	edges[len(edges)-1] = 9
	return edges
}

// Formation time grid, Gyr.
const (
	sfhStart = 0.0
	sfhEnd   = 14.0
	sfhStep  = 0.01
)

// Spectra column names.
const (
	ColumnNStars      = "NStars"
	ColumnInitialMass = "InitialMass"
)

// SpectraOptions configures spectral synthesis.
type SpectraOptions struct {
	StellarDir       string
	OutputDir        string
	ApertureKpc      float64
	SolarMetallicity float64
	Tage             float64
	Params           map[string]float64
	// InstSFR, when set, replaces the youngest SFH bin with the gas SFR and
	// restricts the run to subhalos that have one.
	InstSFR map[model.SubhaloID]float64
}

// Spectra synthesises the integrated spectrum of the central stars of a
// subhalo and writes it to spectra_NNNNNN.txt. Its row reports how many star
// particles and how much initial mass (1e10 Msun) went in.
type Spectra struct {
	env   *Env
	opts  SpectraOptions
	synth Synthesizer
	out   *utils.OutputManager

	metEdges  []float64
	timeEdges []float64
	timeMid   []float64
	dt        []float64
}

// NewSpectra creates the spectra processor.
func NewSpectra(env *Env, synth Synthesizer, opts SpectraOptions) (*Spectra, error) {
	if synth == nil {
		return nil, fmt.Errorf("spectra needs a synthesizer")
	}
	if opts.ApertureKpc <= 0 {
		return nil, fmt.Errorf("aperture must be positive, got %g kpc", opts.ApertureKpc)
	}
	if opts.SolarMetallicity <= 0 {
		return nil, fmt.Errorf("solar metallicity must be positive, got %g", opts.SolarMetallicity)
	}
	out := utils.NewOutputManager(opts.OutputDir)
	if err := out.EnsureOutputDirExists(); err != nil {
		return nil, err
	}

	edges := astro.LinEdges(sfhStart, sfhEnd, sfhStep)
	mid := make([]float64, len(edges)-1)
	dt := make([]float64, len(edges)-1)
	for i := range mid {
		mid[i] = (edges[i] + edges[i+1]) / 2
		dt[i] = edges[i+1] - edges[i]
	}

	return &Spectra{
		env:       env,
		opts:      opts,
		synth:     synth,
		out:       out,
		metEdges:  MetallicityEdges(MetallicityCentres),
		timeEdges: edges,
		timeMid:   mid,
		dt:        dt,
	}, nil
}

func (p *Spectra) Name() string      { return "spectra" }
func (p *Spectra) Columns() []string { return []string{ColumnNStars, ColumnInitialMass} }

// SpectrumPath returns where the spectrum of id is written.
func (p *Spectra) SpectrumPath(id model.SubhaloID) string {
	return p.out.SpectrumFile(p.opts.OutputDir, int64(id))
}

// population is the star set entering the synthesis.
type population struct {
	formTime []float64 // Gyr
	mass     []float64 // initial, 1e10 Msun
	logZ     []float64 // log10(Z/Zsun)
}

func (p *Spectra) Process(ctx context.Context, id model.SubhaloID) ([]float64, error) {
	var instSFR float64
	if p.opts.InstSFR != nil {
		v, ok := p.opts.InstSFR[id]
		if !ok {
			return nil, fmt.Errorf("%w: no instantaneous SFR for subhalo %d", model.ErrMissingData, id)
		}
		instSFR = v
	}

	sub, err := p.env.Fetcher.Subhalo(ctx, id)
	if err != nil {
		return nil, err
	}
	stars, err := p.env.Reader.ReadStars(utils.CutoutFile(p.opts.StellarDir, int64(id)),
		snapshot.FieldCoordinates,
		snapshot.FieldFormationTime,
		snapshot.FieldInitialMass,
		snapshot.FieldMasses,
		snapshot.FieldMetallicity,
	)
	if err != nil {
		return nil, err
	}

	pop := p.selectPopulation(stars, sub.Pos())

	total, wave, err := p.synthesize(ctx, pop, instSFR)
	if err != nil {
		return nil, err
	}
	if err := writeSpectrum(p.SpectrumPath(id), wave, total); err != nil {
		return nil, err
	}
	p.env.logger().Debug("spectrum written", zap.Stringer("subhalo", id), zap.Int("stars", len(pop.mass)))

	return []float64{float64(len(pop.mass)), floats.Sum(pop.mass) / astro.CodeMass}, nil
}

// selectPopulation keeps real stars (formation scale factor > 0) inside the aperture.
func (p *Spectra) selectPopulation(stars *snapshot.Stars, center [3]float64) population {
	r := astro.Radii(stars.Coordinates, center, p.env.BoxSize, p.env.KpcPerCode())

	var pop population
	for i := range r {
		a := stars.FormationTime[i]
		if a <= 0 || r[i] >= p.opts.ApertureKpc {
			continue
		}
		pop.formTime = append(pop.formTime, p.env.Cosmo.CosmicTime(a))
		pop.mass = append(pop.mass, stars.InitialMass[i]*astro.CodeMass)
		pop.logZ = append(pop.logZ, math.Log10(stars.Metallicity[i]/p.opts.SolarMetallicity))
	}
	return pop
}

// synthesize builds one SFH per metallicity bin, synthesises each and sums
// the spectra, ignoring NaN fluxes.
func (p *Spectra) synthesize(ctx context.Context, pop population, instSFR float64) (total, wave []float64, err error) {
	zbin := make([]int, len(pop.logZ))
	for i, z := range pop.logZ {
		zbin[i] = astro.Digitize(z, p.metEdges)
	}

	for i := 1; i < len(MetallicityCentres); i++ {
		sfh := SFH{
			Time:    p.timeMid,
			SFR:     p.history(pop, zbin, i),
			LogZsol: MetallicityCentres[i],
			Tage:    p.opts.Tage,
			Params:  p.opts.Params,
		}
		if p.opts.InstSFR != nil {
			sfh.SFR[len(sfh.SFR)-1] = instSFR
		}

		spec, err := p.synth.Synthesize(ctx, sfh)
		if err != nil {
			return nil, nil, fmt.Errorf("synthesis at logzsol=%g: %w", sfh.LogZsol, err)
		}
		if total == nil {
			wave = spec.Wave
			total = make([]float64, len(spec.Flux))
		}
		if len(spec.Flux) != len(total) {
			return nil, nil, fmt.Errorf("synthesizer returned %d fluxes, expected %d", len(spec.Flux), len(total))
		}
		for k, f := range spec.Flux {
			if !math.IsNaN(f) {
				total[k] += f
			}
		}
	}
	return total, wave, nil
}

// history returns the star formation rate in Msun/yr per time bin for the
// stars in metallicity bin z.
func (p *Spectra) history(pop population, zbin []int, z int) []float64 {
	sfr := make([]float64, len(p.dt))
	for i, b := range zbin {
		if b != z {
			continue
		}
		j := astro.Digitize(pop.formTime[i], p.timeEdges) - 1
		if j < 0 || j >= len(sfr) {
			continue
		}
		sfr[j] += pop.mass[i]
	}
	for j := range sfr {
		sfr[j] /= p.dt[j] * 1e9
	}
	return sfr
}

// writeSpectrum writes two whitespace separated rows, wavelength then flux.
func writeSpectrum(path string, wave, flux []float64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create spectrum file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, row := range [][]float64{wave, flux} {
		for k, v := range row {
			if k > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.FormatFloat(v, 'e', 18, 64))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write spectrum: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write spectrum: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

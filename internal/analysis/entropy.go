package analysis

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
)

// EntropyOptions configures the radial entropy profile.
type EntropyOptions struct {
	Bins     int
	RMin     float64 // r/r200
	RMax     float64
	GasDir   string
	GasQuery url.Values
}

// Entropy bins the gas entropy K = kT / n_e^(2/3) of a subhalo into
// logarithmic shells of r/r200 and reports the mass-weighted mean and
// standard deviation per shell, in eV cm^2.
type Entropy struct {
	env     *Env
	opts    EntropyOptions
	edges   []float64
	columns []string
}

// NewEntropy creates the entropy processor.
func NewEntropy(env *Env, opts EntropyOptions) (*Entropy, error) {
	if opts.Bins <= 0 {
		return nil, fmt.Errorf("entropy bins must be positive, got %d", opts.Bins)
	}
	if opts.RMin <= 0 || opts.RMax <= opts.RMin {
		return nil, fmt.Errorf("invalid radial range [%g, %g]", opts.RMin, opts.RMax)
	}

	edges := astro.LogEdges(opts.Bins, opts.RMin, opts.RMax)
	cols := make([]string, 0, 2*opts.Bins)
	for i := 0; i < opts.Bins; i++ {
		r := math.Sqrt(edges[i] * edges[i+1])
		cols = append(cols, fmt.Sprintf("avg_%.4f", r), fmt.Sprintf("std_%.4f", r))
	}
	return &Entropy{env: env, opts: opts, edges: edges, columns: cols}, nil
}

func (p *Entropy) Name() string      { return "entropy" }
func (p *Entropy) Columns() []string { return p.columns }

// Edges returns the r/r200 bin edges.
func (p *Entropy) Edges() []float64 { return p.edges }

func (p *Entropy) Process(ctx context.Context, id model.SubhaloID) ([]float64, error) {
	sub, err := p.env.Fetcher.Subhalo(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := p.env.fetchGas(ctx, id, p.opts.GasDir, p.opts.GasQuery)
	if err != nil {
		return nil, err
	}
	gas, err := p.env.Reader.ReadGas(path,
		snapshot.FieldCoordinates,
		snapshot.FieldDensity,
		snapshot.FieldMasses,
		snapshot.FieldInternalEnergy,
		snapshot.FieldElectronAbundance,
	)
	if err != nil {
		return nil, err
	}

	h := p.env.Cosmo.LittleH
	ent := GasEntropy(gas, p.env.ScaleFactor(), h)
	r := astro.Radii(gas.Coordinates, sub.Pos(), p.env.BoxSize, p.env.KpcPerCode())
	r200 := p.env.Cosmo.R200(sub.MassDM * astro.CodeMass / h)

	return p.profile(ent, gas.Masses, r, r200), nil
}

// profile bins values by r/r200. Output is avg0, std0, avg1, std1, ...
func (p *Entropy) profile(ent, mass, r []float64, r200 float64) []float64 {
	nb := p.opts.Bins
	vals := make([][]float64, nb)
	wts := make([][]float64, nb)
	for i := range ent {
		b := astro.Digitize(r[i]/r200, p.edges)
		if b < 1 || b > nb {
			continue
		}
		vals[b-1] = append(vals[b-1], ent[i])
		wts[b-1] = append(wts[b-1], mass[i])
	}

	out := make([]float64, 2*nb)
	for b := 0; b < nb; b++ {
		out[2*b], out[2*b+1] = astro.WeightedMeanStd(vals[b], wts[b])
	}
	return out
}

// GasEntropy returns K = k_B T / n_e^(2/3) per gas cell in eV cm^2.
// Temperature follows from the internal energy and electron abundance with
// a primordial hydrogen fraction; densities are converted from comoving code
// units at scale factor a.
func GasEntropy(gas *snapshot.Gas, a, h float64) []float64 {
	const (
		xh    = astro.HydrogenFraction
		gamma = astro.AdiabaticIndex
	)
	lenUnit := astro.Kpc * a / h
	densUnit := astro.CodeMass * astro.SolarMass / h / (lenUnit * lenUnit * lenUnit)

	k := make([]float64, gas.Len())
	for i := range k {
		ne := gas.ElectronAbundance[i]
		mu := 4 / (1 + 3*xh + 4*xh*ne) * astro.ProtonMass
		temp := (gamma - 1) * gas.InternalEnergy[i] * astro.CodeVelocitySq / astro.Boltzmann * mu

		rho := gas.Density[i] * densUnit
		nElec := ne * xh * rho / astro.ProtonMass

		k[i] = astro.Boltzmann * temp / math.Pow(nElec, gamma-1) / astro.ElectronVolt
	}
	return k
}

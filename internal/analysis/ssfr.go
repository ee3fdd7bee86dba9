package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"net/url"
	"os"

	"gonum.org/v1/gonum/floats"

	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/pkg/utils"
)

// SSFR column names.
const (
	ColumnSFR  = "SFR"
	ColumnSSFR = "sSFR"
)

// SSFROptions configures the central star formation measurement.
type SSFROptions struct {
	ApertureKpc float64
	GasDir      string
	StellarDir  string
	GasQuery    url.Values
}

// SSFR measures the instantaneous star formation rate of the gas (Msun/yr)
// and the specific SFR (1/yr) inside a central aperture.
type SSFR struct {
	env  *Env
	opts SSFROptions
}

// NewSSFR creates the sSFR processor.
func NewSSFR(env *Env, opts SSFROptions) (*SSFR, error) {
	if opts.ApertureKpc <= 0 {
		return nil, fmt.Errorf("aperture must be positive, got %g kpc", opts.ApertureKpc)
	}
	return &SSFR{env: env, opts: opts}, nil
}

func (p *SSFR) Name() string      { return "ssfr" }
func (p *SSFR) Columns() []string { return []string{ColumnSFR, ColumnSSFR} }

func (p *SSFR) Process(ctx context.Context, id model.SubhaloID) ([]float64, error) {
	gasPath, err := p.env.fetchGas(ctx, id, p.opts.GasDir, p.opts.GasQuery)
	if err != nil {
		return nil, err
	}
	sub, err := p.env.Fetcher.Subhalo(ctx, id)
	if err != nil {
		return nil, err
	}

	gas, err := p.env.Reader.ReadGas(gasPath, snapshot.FieldCoordinates, snapshot.FieldStarFormationRate)
	if err != nil {
		return nil, err
	}
	stars, err := p.env.Reader.ReadStars(utils.CutoutFile(p.opts.StellarDir, int64(id)),
		snapshot.FieldCoordinates, snapshot.FieldMasses)
	if err != nil {
		return nil, err
	}

	center := sub.Pos()
	scale := p.env.KpcPerCode()
	aperture := p.opts.ApertureKpc

	r := astro.Radii(gas.Coordinates, center, p.env.BoxSize, scale)
	sfr := sumWithin(gas.StarFormationRate, r, aperture)

	sr := astro.Radii(stars.Coordinates, center, p.env.BoxSize, scale)
	mstar := sumWithin(stars.Masses, sr, aperture) * astro.CodeMass / p.env.Cosmo.LittleH

	ssfr := math.NaN()
	if mstar > 0 {
		ssfr = sfr / mstar
	}
	return []float64{sfr, ssfr}, nil
}

func sumWithin(v, r []float64, limit float64) float64 {
	sel := make([]float64, 0, len(v))
	for i, x := range v {
		if r[i] < limit {
			sel = append(sel, x)
		}
	}
	return floats.Sum(sel)
}

// InstSFR is one entry of the "all" mapping written by an sSFR run.
type InstSFR struct {
	SFR  model.Float `json:"SFR"`
	SSFR model.Float `json:"sSFR"`
}

// InstMapping extracts the successfully measured subhalos of an sSFR table.
// Subhalos without gas are left out, which is what the spectra run keys on.
func InstMapping(t *model.Table) (map[model.SubhaloID]InstSFR, error) {
	iSFR, iSSFR := t.Column(ColumnSFR), t.Column(ColumnSSFR)
	if iSFR < 0 || iSSFR < 0 {
		return nil, fmt.Errorf("table has no %s/%s columns", ColumnSFR, ColumnSSFR)
	}
	out := make(map[model.SubhaloID]InstSFR, t.Len())
	for _, row := range t.Rows {
		if row.Status != model.StatusOK {
			continue
		}
		out[row.ID] = InstSFR{SFR: model.Float(row.Values[iSFR]), SSFR: model.Float(row.Values[iSSFR])}
	}
	return out, nil
}

// SelectActive returns the sample entries of every subhalo whose sSFR is
// above threshold, each extended with an inst_sSFR property. Sample
// properties are copied, never modified.
func SelectActive(t *model.Table, sample model.Catalogue, threshold float64) (model.Catalogue, error) {
	iSSFR := t.Column(ColumnSSFR)
	if iSSFR < 0 {
		return nil, fmt.Errorf("table has no %s column", ColumnSSFR)
	}
	out := make(model.Catalogue)
	for _, row := range t.Rows {
		ssfr := row.Values[iSSFR]
		if row.Status != model.StatusOK || !(ssfr > threshold) {
			continue
		}
		props := make(model.Properties, len(sample[row.ID])+1)
		maps.Copy(props, sample[row.ID])
		props["inst_sSFR"] = ssfr
		out[row.ID] = props
	}
	return out, nil
}

// LoadInstSFR reads an "all" mapping and returns the instantaneous SFR per
// subhalo. Entries with a null SFR are dropped.
func LoadInstSFR(path string) (map[model.SubhaloID]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instantaneous SFR mapping: %w", err)
	}
	var raw map[model.SubhaloID]InstSFR
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	out := make(map[model.SubhaloID]float64, len(raw))
	for id, v := range raw {
		if sfr := float64(v.SFR); !math.IsNaN(sfr) {
			out[id] = sfr
		}
	}
	return out, nil
}

// Package analysis holds the per-subhalo computations. Each analysis is a
// Processor: it turns one subhalo id into a fixed-length row of numbers, or
// an error wrapping model.ErrMissingData or model.ErrTransient when the
// inputs could not be obtained.
package analysis

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/internal/tng"
)

// Processor computes one row per subhalo. Process must return exactly
// len(Columns()) values on success.
type Processor interface {
	Name() string
	Columns() []string
	Process(ctx context.Context, id model.SubhaloID) ([]float64, error)
}

// Fetcher is the part of the remote API the processors need.
type Fetcher interface {
	Subhalo(ctx context.Context, id model.SubhaloID) (*tng.Subhalo, error)
	Cutout(ctx context.Context, id model.SubhaloID, dir string, query url.Values) (string, bool, error)
}

// Env is what every processor shares: data sources, cosmology and the
// simulation box.
type Env struct {
	Fetcher  Fetcher
	Reader   snapshot.Reader
	Cosmo    astro.Cosmology
	Redshift float64
	BoxSize  float64 // ckpc/h
	Logger   *zap.Logger
}

// ScaleFactor returns a = 1/(1+z).
func (e *Env) ScaleFactor() float64 { return 1 / (1 + e.Redshift) }

// KpcPerCode converts comoving code lengths (ckpc/h) to physical kpc.
func (e *Env) KpcPerCode() float64 { return e.ScaleFactor() / e.Cosmo.LittleH }

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// fetchGas returns the gas cutout of id, downloading it into dir when it is
// not cached yet.
func (e *Env) fetchGas(ctx context.Context, id model.SubhaloID, dir string, query url.Values) (string, error) {
	path, cached, err := e.Fetcher.Cutout(ctx, id, dir, query)
	if err != nil {
		return "", err
	}
	if !cached {
		e.logger().Debug("cutout downloaded", zap.Stringer("subhalo", id), zap.String("path", path))
	}
	return path, nil
}

// GasQuery builds the cutout query asking for the given comma separated gas
// fields.
func GasQuery(fields string) url.Values {
	if fields == "" {
		return nil
	}
	return url.Values{"gas": {fields}}
}

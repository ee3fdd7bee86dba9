package analysis

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/internal/tng"
	"subhalo-pipeline/pkg/utils"
)

var illustris = astro.Cosmology{LittleH: 0.704, OmegaM: 0.2726, OmegaL: 0.7274}

type fakeFetcher struct {
	mu        sync.Mutex
	subhalos  map[model.SubhaloID]*tng.Subhalo
	cutoutErr error
	cutouts   int
}

func (f *fakeFetcher) Subhalo(_ context.Context, id model.SubhaloID) (*tng.Subhalo, error) {
	sub, ok := f.subhalos[id]
	if !ok {
		return nil, fmt.Errorf("%w: subhalo %d", model.ErrMissingData, id)
	}
	return sub, nil
}

func (f *fakeFetcher) Cutout(_ context.Context, id model.SubhaloID, dir string, _ url.Values) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutouts++
	if f.cutoutErr != nil {
		return "", false, f.cutoutErr
	}
	return utils.CutoutFile(dir, int64(id)), true, nil
}

type fakeReader struct {
	gas   map[string]*snapshot.Gas
	stars map[string]*snapshot.Stars
}

func (r *fakeReader) ReadGas(path string, _ ...string) (*snapshot.Gas, error) {
	g, ok := r.gas[path]
	if !ok {
		return nil, fmt.Errorf("%w: no gas in %s", model.ErrMissingData, path)
	}
	return g, nil
}

func (r *fakeReader) ReadStars(path string, _ ...string) (*snapshot.Stars, error) {
	s, ok := r.stars[path]
	if !ok {
		return nil, fmt.Errorf("%w: no stars in %s", model.ErrMissingData, path)
	}
	return s, nil
}

func newEnv(f *fakeFetcher, r *fakeReader) *Env {
	return &Env{Fetcher: f, Reader: r, Cosmo: illustris, BoxSize: 75000}
}

// offset returns a comoving code position dkpc physical kpc away from c
// along axis k at z=0.
func offset(c [3]float64, k int, dkpc float64) [3]float64 {
	c[k] += dkpc * illustris.LittleH
	return c
}

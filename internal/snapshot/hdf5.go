package snapshot

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gonum.org/v1/hdf5"

	"subhalo-pipeline/internal/model"
)

// The HDF5 C library is not built thread-safe everywhere; every rank shares
// this lock.
var h5mu sync.Mutex

// HDF5 reads cutouts from disk.
type HDF5 struct{}

var _ Reader = HDF5{}

// ReadGas reads the named PartType0 fields from path.
func (HDF5) ReadGas(path string, fields ...string) (*Gas, error) {
	g := &Gas{}
	if err := readGroup(path, GroupGas, fields, g.set); err != nil {
		return nil, err
	}
	return g, nil
}

// ReadStars reads the named PartType4 fields from path.
func (HDF5) ReadStars(path string, fields ...string) (*Stars, error) {
	s := &Stars{}
	if err := readGroup(path, GroupStars, fields, s.set); err != nil {
		return nil, err
	}
	return s, nil
}

type setter func(field string, v []float64, c [][3]float64) error

func readGroup(path, group string, fields []string, set setter) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: cutout %s does not exist", model.ErrMissingData, path)
		}
		return fmt.Errorf("failed to stat cutout: %w", err)
	}

	h5mu.Lock()
	defer h5mu.Unlock()

	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return fmt.Errorf("failed to open cutout %s: %w", path, err)
	}
	defer f.Close()

	if !f.LinkExists(group) {
		return fmt.Errorf("%w: %s has no %s group", model.ErrMissingData, path, group)
	}
	g, err := f.OpenGroup(group)
	if err != nil {
		return fmt.Errorf("failed to open %s/%s: %w", path, group, err)
	}
	defer g.Close()

	n := -1
	for _, field := range fields {
		if !g.LinkExists(field) {
			return fmt.Errorf("%w: %s/%s has no %s dataset", model.ErrMissingData, path, group, field)
		}
		data, dims, err := readDataset(g, field)
		if err != nil {
			return fmt.Errorf("failed to read %s/%s/%s: %w", path, group, field, err)
		}
		if n >= 0 && int(dims[0]) != n {
			return fmt.Errorf("%s/%s/%s has %d rows, expected %d", path, group, field, dims[0], n)
		}
		n = int(dims[0])

		switch {
		case len(dims) == 2 && dims[1] == 3:
			if err := set(field, nil, toVectors(data)); err != nil {
				return err
			}
		case len(dims) == 1:
			if err := set(field, data, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s/%s/%s has unsupported shape %v", path, group, field, dims)
		}
	}
	return nil
}

func readDataset(g *hdf5.Group, name string) ([]float64, []uint, error) {
	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, nil, err
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, err
	}
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("scalar dataset")
	}

	total := 1
	for _, d := range dims {
		total *= int(d)
	}
	data := make([]float64, total)
	if total == 0 {
		return data, dims, nil
	}
	// HDF5 converts float32 datasets into the float64 memory type.
	if err := ds.Read(&data); err != nil {
		return nil, nil, err
	}
	return data, dims, nil
}

func toVectors(flat []float64) [][3]float64 {
	out := make([][3]float64, len(flat)/3)
	for i := range out {
		out[i] = [3]float64{flat[3*i], flat[3*i+1], flat[3*i+2]}
	}
	return out
}

func flatten(c [][3]float64) []float64 {
	out := make([]float64, 0, 3*len(c))
	for _, x := range c {
		out = append(out, x[0], x[1], x[2])
	}
	return out
}

// WriteCutout writes gas and stars (either may be nil) to a new HDF5 file
// laid out like an API cutout. Nil fields are skipped.
func WriteCutout(path string, gas *Gas, stars *Stars) error {
	h5mu.Lock()
	defer h5mu.Unlock()

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create cutout %s: %w", path, err)
	}
	defer f.Close()

	if gas != nil {
		if err := writeGroup(f, GroupGas, gas.Coordinates, gas.columns()); err != nil {
			return err
		}
	}
	if stars != nil {
		if err := writeGroup(f, GroupStars, stars.Coordinates, stars.columns()); err != nil {
			return err
		}
	}
	return nil
}

func writeGroup(f *hdf5.File, name string, coords [][3]float64, cols map[string][]float64) error {
	g, err := f.CreateGroup(name)
	if err != nil {
		return fmt.Errorf("failed to create group %s: %w", name, err)
	}
	defer g.Close()

	if coords != nil {
		if err := writeDataset(g, FieldCoordinates, flatten(coords), []uint{uint(len(coords)), 3}); err != nil {
			return err
		}
	}
	for field, v := range cols {
		if v == nil {
			continue
		}
		if err := writeDataset(g, field, v, []uint{uint(len(v))}); err != nil {
			return err
		}
	}
	return nil
}

func writeDataset(g *hdf5.Group, name string, data []float64, dims []uint) error {
	dtype, err := hdf5.NewDatatypeFromValue(float64(0))
	if err != nil {
		return err
	}
	defer dtype.Close()
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()

	ds, err := g.CreateDataset(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	defer ds.Close()

	if len(data) == 0 {
		return nil
	}
	return ds.Write(&data)
}

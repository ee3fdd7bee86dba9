// Package snapshot reads particle cutouts written by the simulation API.
// A cutout is an HDF5 file with one group per particle type (PartType0 for
// gas, PartType4 for stars) holding one dataset per field.
package snapshot

import "fmt"

// Particle groups.
const (
	GroupGas   = "PartType0"
	GroupStars = "PartType4"
)

// Dataset names.
const (
	FieldCoordinates       = "Coordinates"
	FieldDensity           = "Density"
	FieldMasses            = "Masses"
	FieldInternalEnergy    = "InternalEnergy"
	FieldElectronAbundance = "ElectronAbundance"
	FieldStarFormationRate = "StarFormationRate"
	FieldFormationTime     = "GFM_StellarFormationTime"
	FieldInitialMass       = "GFM_InitialMass"
	FieldMetallicity       = "GFM_Metallicity"
)

// Gas holds the PartType0 fields that were requested. Unrequested fields are nil.
type Gas struct {
	Coordinates       [][3]float64
	Density           []float64
	Masses            []float64
	InternalEnergy    []float64
	ElectronAbundance []float64
	StarFormationRate []float64
}

// Len returns the particle count.
func (g *Gas) Len() int {
	return particleCount(g.Coordinates, g.Density, g.Masses, g.InternalEnergy, g.ElectronAbundance, g.StarFormationRate)
}

func (g *Gas) set(field string, v []float64, c [][3]float64) error {
	switch field {
	case FieldCoordinates:
		g.Coordinates = c
	case FieldDensity:
		g.Density = v
	case FieldMasses:
		g.Masses = v
	case FieldInternalEnergy:
		g.InternalEnergy = v
	case FieldElectronAbundance:
		g.ElectronAbundance = v
	case FieldStarFormationRate:
		g.StarFormationRate = v
	default:
		return fmt.Errorf("unknown gas field %q", field)
	}
	return nil
}

func (g *Gas) columns() map[string][]float64 {
	return map[string][]float64{
		FieldDensity:           g.Density,
		FieldMasses:            g.Masses,
		FieldInternalEnergy:    g.InternalEnergy,
		FieldElectronAbundance: g.ElectronAbundance,
		FieldStarFormationRate: g.StarFormationRate,
	}
}

// Stars holds the PartType4 fields that were requested. FormationTime is a
// scale factor; wind particles share the group and have FormationTime <= 0.
type Stars struct {
	Coordinates   [][3]float64
	FormationTime []float64
	InitialMass   []float64
	Masses        []float64
	Metallicity   []float64
}

// Len returns the particle count, wind particles included.
func (s *Stars) Len() int {
	return particleCount(s.Coordinates, s.FormationTime, s.InitialMass, s.Masses, s.Metallicity)
}

func (s *Stars) set(field string, v []float64, c [][3]float64) error {
	switch field {
	case FieldCoordinates:
		s.Coordinates = c
	case FieldFormationTime:
		s.FormationTime = v
	case FieldInitialMass:
		s.InitialMass = v
	case FieldMasses:
		s.Masses = v
	case FieldMetallicity:
		s.Metallicity = v
	default:
		return fmt.Errorf("unknown star field %q", field)
	}
	return nil
}

func (s *Stars) columns() map[string][]float64 {
	return map[string][]float64{
		FieldFormationTime: s.FormationTime,
		FieldInitialMass:   s.InitialMass,
		FieldMasses:        s.Masses,
		FieldMetallicity:   s.Metallicity,
	}
}

func particleCount(c [][3]float64, cols ...[]float64) int {
	if c != nil {
		return len(c)
	}
	for _, col := range cols {
		if col != nil {
			return len(col)
		}
	}
	return 0
}

// Reader loads particle sets from cutout files.
type Reader interface {
	ReadGas(path string, fields ...string) (*Gas, error)
	ReadStars(path string, fields ...string) (*Stars, error)
}

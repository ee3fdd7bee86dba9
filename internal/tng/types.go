package tng

// Simulation is the metadata document at the simulation root.
type Simulation struct {
	Name         string  `json:"name"`
	BoxSize      float64 `json:"boxsize"` // ckpc/h
	Hubble       float64 `json:"hubble"`
	Omega0       float64 `json:"omega_0"`
	OmegaL       float64 `json:"omega_L"`
	NumSnapshots int     `json:"num_snapshots"`
}

// Subhalo is the catalogue entry for one subhalo. Positions are comoving
// ckpc/h, masses are in 1e10 Msun/h.
type Subhalo struct {
	ID        int64   `json:"id"`
	PosX      float64 `json:"pos_x"`
	PosY      float64 `json:"pos_y"`
	PosZ      float64 `json:"pos_z"`
	Mass      float64 `json:"mass"`
	MassDM    float64 `json:"mass_dm"`
	MassGas   float64 `json:"mass_gas"`
	MassStars float64 `json:"mass_stars"`
	SFR       float64 `json:"sfr"`
	Primary   int     `json:"primary_flag"`
}

// Pos returns the subhalo position as a vector.
func (s *Subhalo) Pos() [3]float64 { return [3]float64{s.PosX, s.PosY, s.PosZ} }

package astro

import "math"

// Cosmology is a flat ΛCDM parameter set.
type Cosmology struct {
	LittleH float64
	OmegaM  float64
	OmegaL  float64
}

// H0 returns the Hubble constant in s^-1.
func (c Cosmology) H0() float64 {
	return c.LittleH * 100 * Km / Mpc
}

// CosmicTime returns the age of the universe in Gyr at scale factor a.
func (c Cosmology) CosmicTime(a float64) float64 {
	h0 := c.LittleH * 100 // km/s/Mpc
	x := c.OmegaL / c.OmegaM * a * a * a
	t := 2.0 / (3.0 * h0) / math.Sqrt(c.OmegaL) * math.Log(math.Sqrt(x)+math.Sqrt(x+1))
	return t * 3.08568e19 / 3.15576e16
}

// R200 returns the radius in kpc enclosing the given mass (Msun) at 200 times
// the critical density, r^3 = G M / (100 H0^2).
func (c Cosmology) R200(massMsun float64) float64 {
	h0 := c.H0()
	r := math.Cbrt(G * massMsun * SolarMass / (100 * h0 * h0))
	return r / Kpc
}

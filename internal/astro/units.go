// Package astro holds the numerical helpers shared by the analyses: physical
// constants, periodic-box geometry, binning and flat ΛCDM cosmology.
//
// Everything is in cgs unless a name says otherwise.
package astro

// CODATA 2018 / IAU 2015 values.
const (
	G            = 6.67430e-8            // cm^3 g^-1 s^-2
	ProtonMass   = 1.67262192369e-24     // g
	Boltzmann    = 1.380649e-16          // erg K^-1
	SolarMass    = 1.988409870698051e33  // g
	Kpc          = 3.0856775814913673e21 // cm
	Mpc          = 3.0856775814913673e24 // cm
	ElectronVolt = 1.602176634e-12       // erg
	Year         = 3.15576e7             // s, Julian
	Km           = 1e5                   // cm
)

// Illustris/TNG code units.
const (
	// CodeMass is 1e10 Msun/h in Msun, before dividing by h.
	CodeMass = 1e10
	// CodeVelocitySq converts (km/s)^2 to (cm/s)^2.
	CodeVelocitySq = 1e10
)

// Primordial gas composition.
const (
	HydrogenFraction = 0.76
	AdiabaticIndex   = 5.0 / 3.0
)

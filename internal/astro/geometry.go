package astro

import "math"

// PeriodicOffset returns x - center wrapped into [-width/2, width/2].
func PeriodicOffset(x, center, width float64) float64 {
	d := x - center
	half := width / 2
	if d > half {
		d -= width
	} else if d < -half {
		d += width
	}
	return d
}

// Radii returns the physical distance of every point from center. Coordinates
// are comoving code lengths in a periodic box of the given width; scale
// converts them to the output unit (a/h for kpc).
func Radii(coords [][3]float64, center [3]float64, width, scale float64) []float64 {
	r := make([]float64, len(coords))
	for i, x := range coords {
		var sum float64
		for k := 0; k < 3; k++ {
			d := PeriodicOffset(x[k], center[k], width) * scale
			sum += d * d
		}
		r[i] = math.Sqrt(sum)
	}
	return r
}

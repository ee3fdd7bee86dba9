package astro

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var illustris = Cosmology{LittleH: 0.704, OmegaM: 0.2726, OmegaL: 0.7274}

func TestPeriodicOffset(t *testing.T) {
	tests := []struct {
		x, c, want float64
	}{
		{10, 5, 5},
		{99, 1, -2},
		{1, 99, 2},
		{50, 0, 50},
		{0, 50, -50},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PeriodicOffset(tt.x, tt.c, 100), 1e-12, "x=%g c=%g", tt.x, tt.c)
	}
}

func TestRadii(t *testing.T) {
	coords := [][3]float64{{1, 1, 1}, {99, 1, 1}, {4, 5, 1}}
	r := Radii(coords, [3]float64{1, 1, 1}, 100, 2)
	assert.InDeltaSlice(t, []float64{0, 4, 10}, r, 1e-12)
}

func TestDigitize(t *testing.T) {
	edges := []float64{1, 2, 3}
	assert.Equal(t, 0, Digitize(0.5, edges))
	assert.Equal(t, 1, Digitize(1, edges))
	assert.Equal(t, 2, Digitize(2.5, edges))
	assert.Equal(t, 3, Digitize(3, edges))
	assert.Equal(t, 3, Digitize(math.NaN(), edges))
}

func TestLogEdges(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.1, 1, 10}, LogEdges(2, 0.1, 10), 1e-12)

	e := LogEdges(100, 0.1, 1)
	assert.Len(t, e, 101)
	assert.InDelta(t, 0.1, e[0], 1e-15)
	assert.InDelta(t, 1, e[100], 1e-12)
}

func TestLinEdges(t *testing.T) {
	e := LinEdges(0, 14.0, 0.01)
	assert.Len(t, e, 1401)
	assert.InDelta(t, 14.0, e[len(e)-1], 1e-9)
}

func TestWeightedMeanStd(t *testing.T) {
	m, s := WeightedMeanStd([]float64{1, 3}, []float64{1, 1})
	assert.InDelta(t, 2, m, 1e-12)
	assert.InDelta(t, 1, s, 1e-12)

	m, s = WeightedMeanStd([]float64{1, 3}, []float64{3, 1})
	assert.InDelta(t, 1.5, m, 1e-12)
	assert.InDelta(t, math.Sqrt(0.75), s, 1e-12)

	m, s = WeightedMeanStd([]float64{1}, []float64{0})
	assert.True(t, math.IsNaN(m))
	assert.True(t, math.IsNaN(s))
}

func TestCosmicTime(t *testing.T) {
	assert.InDelta(t, 13.7512, illustris.CosmicTime(1), 1e-3)
	assert.InDelta(t, 5.9654, illustris.CosmicTime(0.5), 1e-3)
	assert.Less(t, illustris.CosmicTime(0.1), illustris.CosmicTime(0.2))
}

func TestR200(t *testing.T) {
	assert.InDelta(t, 205.50, illustris.R200(1e12), 0.05)
	// r200 scales as M^(1/3)
	assert.InDelta(t, 2*illustris.R200(1e12), illustris.R200(8e12), 1e-6)
}

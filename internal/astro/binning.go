package astro

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LogEdges returns n+1 logarithmically spaced bin edges from lo to hi.
func LogEdges(n int, lo, hi float64) []float64 {
	return floats.LogSpan(make([]float64, n+1), lo, hi)
}

// LinEdges returns edges from lo to hi (inclusive, within rounding) in steps of width.
func LinEdges(lo, hi, width float64) []float64 {
	n := int(math.Floor((hi-lo)/width+1e-9)) + 1
	edges := make([]float64, n)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	return edges
}

// Digitize returns the index i such that edges[i-1] <= x < edges[i], with 0
// below the first edge and len(edges) at or above the last one. NaN lands in
// len(edges). edges must be increasing.
func Digitize(x float64, edges []float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > x })
}

// WeightedMeanStd returns the weighted mean and the weighted population
// standard deviation of x. Both are NaN when the weights sum to zero.
func WeightedMeanStd(x, w []float64) (mean, std float64) {
	if len(x) == 0 || floats.Sum(w) == 0 {
		return math.NaN(), math.NaN()
	}
	mean, variance := stat.PopMeanVariance(x, w)
	return mean, math.Sqrt(math.Max(variance, 0))
}

package analytics

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (p in [0,100]) of xs using linear
// interpolation between the two nearest ranks (the R-7 method): for sorted
// values and fractional rank k = (n-1)*p/100, the result interpolates
// between v[floor(k)] and v[ceil(k)]. A single-element slice returns that
// element; an empty slice returns 0. The input is not modified.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if len(xs) == 1 {
		return xs[0]
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := (p / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

package aggregate

import (
	"math"
	"sort"
)

// Reducer folds the values of one group into a single number.
type Reducer func([]float64) float64

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median does not modify xs.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Pearson returns the correlation coefficient of the paired samples. ok is
// false with fewer than two pairs or when either side has no variance.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

type cyKey struct {
	country string
	year    int
}

func lessCY(a, b cyKey) bool {
	if a.country != b.country {
		return a.country < b.country
	}
	return a.year < b.year
}

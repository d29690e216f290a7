package optimization

import "math"

const projectionIterations = 200

// ProjectCappedSimplex returns the Euclidean projection of x onto
// {w : Σw = 1, lo <= w_i <= hi}. The set must be non-empty (n*lo <= 1 <= n*hi).
// The shift τ with Σ clip(x_i - τ, lo, hi) = 1 is found by bisection.
func ProjectCappedSimplex(x []float64, lo, hi float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		minX = math.Min(minX, v)
		maxX = math.Max(maxX, v)
	}

	// At τ = minX-hi every weight is hi, at τ = maxX-lo every weight is lo.
	left, right := minX-hi, maxX-lo
	for i := 0; i < projectionIterations; i++ {
		mid := (left + right) / 2
		if clippedSum(x, mid, lo, hi) > 1 {
			left = mid
		} else {
			right = mid
		}
	}

	tau := (left + right) / 2
	for i, v := range x {
		out[i] = clip(v-tau, lo, hi)
	}
	return out
}

func clippedSum(x []float64, tau, lo, hi float64) float64 {
	s := 0.0
	for _, v := range x {
		s += clip(v-tau, lo, hi)
	}
	return s
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

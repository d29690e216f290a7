package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR averages the worst (1-confidence) share of returns.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted)) * (1.0 - confidence)))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	return Mean(sorted[:tailCount])
}

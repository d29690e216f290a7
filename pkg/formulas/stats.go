// Package formulas holds the numeric building blocks shared by the agents.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily returns.
const TradingDaysPerYear = 252.0

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance (n-1 denominator)
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Skew returns the adjusted Fisher-Pearson skewness, 0 for fewer than 3 points.
func Skew(data []float64) float64 {
	if len(data) < 3 || StdDev(data) == 0 {
		return 0
	}
	return stat.Skew(data, nil)
}

// ExKurtosis returns the bias-corrected excess kurtosis, 0 for fewer than 4 points.
func ExKurtosis(data []float64) float64 {
	if len(data) < 4 || StdDev(data) == 0 {
		return 0
	}
	return stat.ExKurtosis(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets.
// Degenerate inputs (mismatched, empty or constant) yield 0.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Beta is cov(asset, market) / var(market). A flat market yields 1.
func Beta(asset, market []float64) float64 {
	v := Variance(market)
	if v <= 0 {
		return 1
	}
	return Covariance(asset, market) / v
}

// Sum adds every value.
func Sum(data []float64) float64 {
	total := 0.0
	for _, v := range data {
		total += v
	}
	return total
}

// Tail returns the last n values (all of them when n exceeds the length).
func Tail(data []float64, n int) []float64 {
	if n >= len(data) {
		return data
	}
	return data[len(data)-n:]
}

// WinRate is the fraction of strictly positive returns.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// MaxDrawdown compounds the returns and reports the deepest peak-to-trough
// decline as a non-positive fraction.
func MaxDrawdown(returns []float64) float64 {
	cumulative := 1.0
	peak := math.Inf(-1)
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			if dd := (cumulative - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// Percentile returns the q-th percentile (0..100) using linear interpolation
// between closest ranks: position (n-1)*q/100 in the sorted data.
func Percentile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}

	pos := float64(len(sorted)-1) * q / 100
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return sorted[int(lo)]
	}
	frac := pos - lo
	return sorted[int(lo)]*(1-frac) + sorted[int(hi)]*frac
}

// AnnualizedReturn scales a mean daily return to a year.
func AnnualizedReturn(dailyMean float64) float64 {
	return dailyMean * TradingDaysPerYear
}

// AnnualizedVolatility scales a daily volatility to a year.
func AnnualizedVolatility(dailyVol float64) float64 {
	return dailyVol * math.Sqrt(TradingDaysPerYear)
}

// CalculateReturns converts prices to simple returns
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 3.0, Mean(data), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), StdDev(data), 1e-12)
	assert.InDelta(t, 2.5, Variance(data), 1e-12)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{1}))
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}

	assert.InDelta(t, 1.0, Percentile(data, 0), 1e-12)
	assert.InDelta(t, 3.0, Percentile(data, 50), 1e-12)
	assert.InDelta(t, 5.0, Percentile(data, 100), 1e-12)
	// position (5-1)*0.05 = 0.2 -> 1 + 0.2*(2-1)
	assert.InDelta(t, 1.2, Percentile(data, 5), 1e-12)
	assert.Equal(t, 0.0, Percentile(nil, 5))
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	data := []float64{3, 1, 2}
	Percentile(data, 50)
	assert.Equal(t, []float64{3, 1, 2}, data)
}

func TestMaxDrawdown(t *testing.T) {
	returns := []float64{0.10, -0.10, -0.10, 0.05}
	// peak 1.1, trough 1.1*0.9*0.9 = 0.891
	assert.InDelta(t, (0.891-1.1)/1.1, MaxDrawdown(returns), 1e-12)

	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02}))
}

func TestWinRate(t *testing.T) {
	assert.InDelta(t, 0.5, WinRate([]float64{0.1, -0.1, 0, 0.2}), 1e-12)
	assert.Equal(t, 0.0, WinRate(nil))
}

func TestBeta(t *testing.T) {
	market := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	asset := make([]float64, len(market))
	for i, m := range market {
		asset[i] = 2 * m
	}
	assert.InDelta(t, 2.0, Beta(asset, market), 1e-9)
	assert.Equal(t, 1.0, Beta(asset, []float64{0.01, 0.01, 0.01, 0.01, 0.01}))
}

func TestCorrelation_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Correlation([]float64{1, 2}, []float64{1}))
	assert.Equal(t, 0.0, Correlation([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
}

func TestSkewAndKurtosis_Guards(t *testing.T) {
	assert.Equal(t, 0.0, Skew([]float64{1, 2}))
	assert.Equal(t, 0.0, ExKurtosis([]float64{1, 2, 3}))
	assert.InDelta(t, 0.0, Skew([]float64{1, 2, 3, 4, 5}), 1e-12)
}

func TestTailAndSum(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{3, 4}, Tail(data, 2))
	assert.Equal(t, data, Tail(data, 10))
	assert.Equal(t, 10.0, Sum(data))
}

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}

	sma := CalculateSMA(closes, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 5.0, *sma, 1e-12)

	assert.Nil(t, CalculateSMA(closes, 10))
}

func TestCovarianceMatrix(t *testing.T) {
	rows := [][]float64{
		{0.01, 0.02},
		{0.02, 0.04},
		{0.03, 0.06},
	}
	cov := CovarianceMatrix(rows)

	assert.InDelta(t, 0.0001, cov.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0002, cov.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0004, cov.At(1, 1), 1e-12)

	w := []float64{0.5, 0.5}
	assert.InDelta(t, 0.25*0.0001+0.5*0.0002+0.25*0.0004, QuadForm(w, cov), 1e-12)
	assert.Equal(t, []float64{0.02, 0.04}, roundAll(ColumnMeans(rows)))
}

func TestMaxPairwiseCorrelation(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, 0.00, 0.01}
	b := []float64{0.02, -0.04, 0.06, 0.00, 0.02}
	c := []float64{-0.01, 0.02, -0.03, 0.00, -0.01}

	assert.InDelta(t, 1.0, MaxPairwiseCorrelation([][]float64{a, b, c}), 1e-9)
	assert.Equal(t, 0.0, MaxPairwiseCorrelation([][]float64{a}))
}

func TestCalculateCVaR(t *testing.T) {
	returns := []float64{-0.05, -0.03, 0.01, 0.02, 0.03, 0.01, 0.0, 0.02, 0.01, 0.01}
	// 10% tail of 10 values -> worst one
	assert.InDelta(t, -0.05, CalculateCVaR(returns, 0.90), 1e-12)
	assert.Equal(t, 0.0, CalculateCVaR(nil, 0.95))
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Round(x*1e6) / 1e6
	}
	return out
}

package optimization

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/domain"
)

// returnsMatrix builds n periods for assets with the given drifts and vols
// using phase-shifted waves so the covariance matrix is well conditioned.
func returnsMatrix(periods int, drifts, vols []float64) [][]float64 {
	rows := make([][]float64, periods)
	for t := range rows {
		rows[t] = make([]float64, len(drifts))
		for j := range drifts {
			wave := math.Sin(float64(t)*(0.7+0.37*float64(j)) + float64(j))
			rows[t][j] = drifts[j] + vols[j]*wave
		}
	}
	return rows
}

func assertValidWeights(t *testing.T, w []float64, lo, hi float64) {
	t.Helper()
	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, lo-1e-9)
		assert.LessOrEqual(t, v, hi+1e-9)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestProjectCappedSimplex(t *testing.T) {
	testCases := []struct {
		name string
		x    []float64
	}{
		{"equal", []float64{0.2, 0.2, 0.2, 0.2, 0.2}},
		{"skewed", []float64{5, -3, 0.1, 0.4, 2}},
		{"negative", []float64{-1, -2, -3, -4, -5, -6}},
		{"huge", []float64{1e6, 0, 0, 0, 0, 0, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ProjectCappedSimplex(tc.x, 0.01, 0.2)
			assertValidWeights(t, w, 0.01, 0.2)
		})
	}
}

func TestProjectCappedSimplex_FeasiblePointUnchanged(t *testing.T) {
	x := []float64{0.2, 0.2, 0.15, 0.15, 0.1, 0.1, 0.1}
	w := ProjectCappedSimplex(x, 0.01, 0.2)
	for i := range x {
		assert.InDelta(t, x[i], w[i], 1e-9)
	}
}

func TestBounds_WidenedWhenInfeasible(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), zerolog.Nop())

	lo, hi := o.Bounds(3)
	assert.Equal(t, 0.01, lo)
	assert.InDelta(t, 1.0/3, hi, 1e-12)

	lo, hi = o.Bounds(10)
	assert.Equal(t, 0.01, lo)
	assert.Equal(t, 0.2, hi)

	lo, _ = o.Bounds(200)
	assert.InDelta(t, 0.005, lo, 1e-12)
}

func TestOptimize_MeanVariance(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), zerolog.Nop())
	drifts := []float64{0.002, 0.001, 0.0005, 0.0008, 0.0001, 0.0012}
	vols := []float64{0.010, 0.015, 0.020, 0.012, 0.025, 0.011}
	rows := returnsMatrix(120, drifts, vols)

	res, err := o.Optimize(rows, []float64{0.9, 0.5, 0.5, 0.5, 0.2, 0.7})
	require.NoError(t, err)
	require.Len(t, res.Weights, 6)
	assertValidWeights(t, res.Weights, 0.01, 0.2)

	// Best reward/risk asset is never underweighted against the worst.
	assert.GreaterOrEqual(t, res.Weights[0], res.Weights[4]-1e-9)
}

func TestOptimize_RiskParity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodRiskParity
	o := NewOptimizer(cfg, zerolog.Nop())
	drifts := []float64{0.001, 0.001, 0.001, 0.001, 0.001}
	vols := []float64{0.005, 0.010, 0.015, 0.020, 0.030}
	rows := returnsMatrix(150, drifts, vols)

	res, err := o.Optimize(rows, nil)
	require.NoError(t, err)
	assertValidWeights(t, res.Weights, 0.01, 0.2)
	assert.GreaterOrEqual(t, res.Weights[0], res.Weights[4]-1e-9)
}

func TestOptimize_EqualWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodEqualWeight
	o := NewOptimizer(cfg, zerolog.Nop())

	res, err := o.Optimize(returnsMatrix(30, []float64{0, 0, 0, 0}, []float64{0.01, 0.01, 0.01, 0.01}), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, res.Weights)
}

// factorReturns draws seeded returns with one shared market factor and
// per-asset drift so the universe has a clear best reward/risk mix.
func factorReturns(periods, assets int) [][]float64 {
	rng := rand.New(rand.NewPCG(7, 11))
	rows := make([][]float64, periods)
	for t := range rows {
		market := 0.01 * rng.NormFloat64()
		rows[t] = make([]float64, assets)
		for j := range rows[t] {
			drift := -0.001 + 0.0003*float64(j%8)
			beta := 0.5 + 0.05*float64(j)
			vol := 0.008 + 0.001*float64(j%5)
			rows[t][j] = drift + beta*market + vol*rng.NormFloat64()
		}
	}
	return rows
}

func TestOptimize_MeanVarianceConvergesOnTwentyAssets(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), zerolog.Nop())
	rows := factorReturns(250, 20)

	res, err := o.Optimize(rows, nil)
	require.NoError(t, err)
	require.True(t, res.Converged, "status %s", res.Status)
	require.Len(t, res.Weights, 20)
	assertValidWeights(t, res.Weights, 0.01, 0.2)

	minW, maxW := res.Weights[0], res.Weights[0]
	for _, w := range res.Weights {
		minW = math.Min(minW, w)
		maxW = math.Max(maxW, w)
	}
	assert.Greater(t, maxW-minW, 0.01, "weights should move away from equal weighting")

	ret, vol := PortfolioStats(rows, res.Weights)
	eqRet, eqVol := PortfolioStats(rows, equalWeights(20))
	assert.Greater(t, ret/vol, eqRet/eqVol)
}

func TestOptimize_IterationCapFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	o := NewOptimizer(cfg, zerolog.Nop())
	drifts := []float64{0.002, 0.001, 0.0005, 0.0008, 0.0001, 0.0012}
	vols := []float64{0.010, 0.015, 0.020, 0.012, 0.025, 0.011}

	res, err := o.Optimize(returnsMatrix(60, drifts, vols), nil)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	for _, w := range res.Weights {
		assert.InDelta(t, 1.0/6, w, 1e-9)
	}
}

func TestOptimize_Empty(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), zerolog.Nop())
	_, err := o.Optimize(nil, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestParseMethod(t *testing.T) {
	assert.Equal(t, MethodMeanVariance, ParseMethod("mean_variance"))
	assert.Equal(t, MethodRiskParity, ParseMethod("risk_parity"))
	assert.Equal(t, MethodEqualWeight, ParseMethod("hrp"))
}

func TestPortfolioStats(t *testing.T) {
	rows := [][]float64{{0.01, 0.03}, {0.03, 0.01}}
	ret, vol := PortfolioStats(rows, []float64{0.5, 0.5})

	assert.InDelta(t, 0.02*252, ret, 1e-9)
	assert.InDelta(t, 0.0, vol, 1e-9)
}

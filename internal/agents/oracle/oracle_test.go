package oracle

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

func newOracle() *Oracle {
	return New(DefaultConfig(), zerolog.Nop())
}

func regimeOf(t *testing.T, d *domain.Decision) domain.RegimeRecommendation {
	t.Helper()
	require.NotNil(t, d)
	rec, ok := d.Recommendation.(domain.RegimeRecommendation)
	require.True(t, ok, "unexpected recommendation %T", d.Recommendation)
	return rec
}

func TestOracle_Crisis(t *testing.T) {
	o := newOracle()

	d := o.Execute(agents.Input{
		"vix":            35.0,
		"spy_price":      400.0,
		"treasury_10y":   3.5,
		"treasury_2y":    4.0,
		"spy_ma_50":      420.0,
		"spy_ma_200":     430.0,
		"news_sentiment": -0.7,
	})

	rec := regimeOf(t, d)
	assert.Equal(t, domain.RegimeCrisis, rec.Regime)
	assert.True(t, rec.RegimeChanged)
	assert.Equal(t, 0, rec.RegimeDurationDays)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, domain.DecisionRegimeDetection, d.Type)
	assert.Contains(t, d.Reasoning, "Regime: CRISIS | VIX extremely elevated (35.0 > 30.0)")
	assert.Contains(t, d.Reasoning, "Yield curve inverted (-0.50%)")
	assert.Contains(t, d.Reasoning, "Strong downtrend")
	assert.Contains(t, d.Reasoning, "Negative news sentiment (-0.70)")
	assert.InDelta(t, -0.5, d.Metadata["yield_curve"], 1e-9)
	assert.NotNil(t, d.Metadata["last_regime_change"])
}

func TestOracle_Bull(t *testing.T) {
	o := newOracle()

	d := o.Execute(agents.Input{
		"vix":            12,
		"spy_price":      450,
		"treasury_10y":   4.5,
		"treasury_2y":    3.0,
		"spy_ma_50":      440,
		"spy_ma_200":     420,
		"news_sentiment": 0.7,
	})

	rec := regimeOf(t, d)
	assert.Equal(t, domain.RegimeBull, rec.Regime)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestOracle_TieBreakUsesScoringOrder(t *testing.T) {
	o := newOracle()

	// BEAR 0.3 from VIX, BULL 0.3 from the uptrend.
	d := o.Execute(agents.Input{
		"vix":          25,
		"spy_price":    450,
		"treasury_10y": 3.5,
		"treasury_2y":  3.0,
		"spy_ma_50":    440,
		"spy_ma_200":   420,
	})

	assert.Equal(t, domain.RegimeBear, regimeOf(t, d).Regime)
}

func TestOracle_DurationAndRecovery(t *testing.T) {
	o := newOracle()
	crisis := agents.Input{"vix": 40, "spy_price": 380, "treasury_10y": 3.0, "treasury_2y": 3.5}

	regimeOf(t, o.Execute(crisis))
	rec := regimeOf(t, o.Execute(crisis))
	assert.False(t, rec.RegimeChanged)
	assert.Equal(t, 1, rec.RegimeDurationDays)

	d := o.Execute(agents.Input{"vix": 22, "spy_price": 390, "treasury_10y": 3.5, "treasury_2y": 3.0})
	rec = regimeOf(t, d)
	assert.Equal(t, domain.RegimeRecovery, rec.Regime)
	assert.True(t, rec.RegimeChanged)
	assert.Contains(t, d.Reasoning, "Volatility declining from crisis levels")

	summary := o.Summary()
	assert.Equal(t, domain.RegimeRecovery, summary.CurrentRegime)
	assert.NotNil(t, summary.LastRegimeChange)
}

func TestOracle_DerivesMovingAverages(t *testing.T) {
	o := newOracle()
	prices := make([]float64, 220)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	d := o.Execute(agents.Input{
		"vix":          17,
		"spy_price":    400,
		"treasury_10y": 3.5,
		"treasury_2y":  3.0,
		"spy_prices":   prices,
	})

	require.NotNil(t, d)
	assert.Contains(t, d.Reasoning, "Strong uptrend")
	assert.Contains(t, d.Metadata, "spy_ma_200")
}

func TestOracle_InvalidInput(t *testing.T) {
	testCases := []struct {
		name  string
		input agents.Input
	}{
		{"missing vix", agents.Input{"spy_price": 400, "treasury_10y": 3.5, "treasury_2y": 3.0}},
		{"non numeric", agents.Input{"vix": "high", "spy_price": 400, "treasury_10y": 3.5, "treasury_2y": 3.0}},
		{"bad optional", agents.Input{"vix": 20, "spy_price": 400, "treasury_10y": 3.5, "treasury_2y": 3.0, "news_sentiment": "bad"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOracle()
			assert.Nil(t, o.Execute(tc.input))
			assert.Equal(t, domain.StatusError, o.Status().Status)
			assert.Equal(t, 1, o.Status().ErrorCount)
		})
	}
}

func TestOracle_ResetStartsOver(t *testing.T) {
	o := newOracle()
	in := agents.Input{"vix": 40, "spy_price": 380, "treasury_10y": 3.0, "treasury_2y": 3.5}

	first := regimeOf(t, o.Execute(in))
	o.Reset()
	assert.Equal(t, domain.RegimeUnknown, o.CurrentRegime())

	replay := regimeOf(t, o.Execute(in))
	assert.Equal(t, first, replay)
	assert.Equal(t, 2, o.Status().DecisionCount)
}

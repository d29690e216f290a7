package strategist

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/internal/optimization"
)

func frame(periods int, symbols []string) *domain.ReturnFrame {
	data := map[string][]float64{}
	for j, s := range symbols {
		col := make([]float64, periods)
		for t := range col {
			col[t] = 0.0005*float64(j+1) + 0.01*(1+0.2*float64(j))*math.Sin(float64(t)*(0.7+0.37*float64(j))+float64(j))
		}
		data[s] = col
	}
	return domain.NewReturnFrame(data, symbols)
}

func buys(symbols ...string) []domain.Signal {
	out := make([]domain.Signal, len(symbols))
	for i, s := range symbols {
		out[i] = domain.Signal{Symbol: s, Type: domain.SignalBuy, Strength: 0.5 + 0.05*float64(i)}
	}
	return out
}

func newStrategist() *Strategist {
	return New(DefaultConfig(), zerolog.Nop())
}

func TestStrategist_HoldWithoutSignals(t *testing.T) {
	s := newStrategist()
	holdings := map[string]interface{}{"AAPL": map[string]interface{}{"value": 1000}}

	d := s.Execute(agents.Input{"signals": []interface{}{}, "current_portfolio": holdings})

	require.NotNil(t, d)
	assert.Equal(t, domain.DecisionPortfolioHold, d.Type)
	assert.Equal(t, 0.90, d.Confidence)
	rec, ok := d.Recommendation.(domain.PortfolioHoldRecommendation)
	require.True(t, ok)
	assert.Equal(t, "HOLD", rec.Action)
	assert.Equal(t, map[string]domain.Position{"AAPL": {Value: 1000}}, rec.CurrentPortfolio)
}

func TestStrategist_HoldWithOnlySellSignals(t *testing.T) {
	s := newStrategist()
	d := s.Execute(agents.Input{
		"signals":           []domain.Signal{{Symbol: "X", Type: domain.SignalSell, Strength: 0.7}},
		"current_portfolio": map[string]float64{},
		"returns_df":        frame(30, []string{"X"}),
	})
	require.NotNil(t, d)
	assert.Equal(t, domain.DecisionPortfolioHold, d.Type)
	assert.Equal(t, "no_buy_signals", d.Metadata["hold_reason"])
}

func TestStrategist_HoldOnInsufficientHistory(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}
	testCases := []struct {
		name  string
		input agents.Input
	}{
		{"no returns", agents.Input{"signals": buys(symbols...), "current_portfolio": map[string]float64{}}},
		{"short returns", agents.Input{"signals": buys(symbols...), "current_portfolio": map[string]float64{}, "returns_df": frame(10, symbols)}},
		{"unknown symbol", agents.Input{"signals": buys("ZZZ"), "current_portfolio": map[string]float64{}, "returns_df": frame(40, symbols)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStrategist()
			d := s.Execute(tc.input)
			require.NotNil(t, d)
			assert.Equal(t, domain.DecisionPortfolioHold, d.Type)
			assert.Equal(t, "insufficient_data", d.Metadata["hold_reason"])
			assert.Equal(t, domain.StatusIdle, s.Status().Status)
		})
	}
}

func TestStrategist_OptimizesWithinBounds(t *testing.T) {
	for _, method := range []optimization.Method{optimization.MethodMeanVariance, optimization.MethodRiskParity} {
		t.Run(string(method), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Optimization.Method = method
			s := New(cfg, zerolog.Nop())
			symbols := []string{"A", "B", "C", "D", "E", "F"}

			d := s.Execute(agents.Input{
				"signals":           buys(symbols...),
				"returns_df":        frame(80, symbols),
				"current_portfolio": map[string]float64{"OLD": 5000},
				"portfolio_value":   100000,
			})

			require.NotNil(t, d)
			assert.Equal(t, domain.DecisionPortfolioOptimization, d.Type)
			assert.Equal(t, 0.80, d.Confidence)
			rec, ok := d.Recommendation.(domain.PortfolioPlanRecommendation)
			require.True(t, ok)

			sum := 0.0
			for _, w := range rec.OptimalWeights {
				assert.GreaterOrEqual(t, w, 0.01-1e-9)
				assert.LessOrEqual(t, w, 0.20+1e-9)
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-6)

			last := rec.Trades[len(rec.Trades)-1]
			assert.Equal(t, "OLD", last.Symbol)
			assert.Equal(t, domain.SideSell, last.Side)
			assert.Equal(t, 5000.0, last.Value)
			assert.InDelta(t, -0.05, last.WeightChange, 1e-12)

			assert.Equal(t, string(method), d.Metadata["optimization_method"])
			assert.Contains(t, d.Reasoning, "Optimized portfolio: 6 positions")
			assert.Equal(t, 6, s.Summary().NPositions)
		})
	}
}

func TestStrategist_InvalidInput(t *testing.T) {
	s := newStrategist()

	assert.Nil(t, s.Execute(agents.Input{"signals": []domain.Signal{}}))
	assert.Nil(t, s.Execute(agents.Input{"signals": []domain.Signal{}, "current_portfolio": map[string]float64{}, "portfolio_value": -1}))
	assert.Nil(t, s.Execute(agents.Input{"signals": "BUY", "current_portfolio": map[string]float64{}}))
	assert.Equal(t, 3, s.Status().ErrorCount)
}

func TestStrategist_ResetForgetsPlan(t *testing.T) {
	s := newStrategist()
	symbols := []string{"A", "B", "C", "D", "E"}
	require.NotNil(t, s.Execute(agents.Input{
		"signals":           buys(symbols...),
		"returns_df":        frame(40, symbols),
		"current_portfolio": map[string]float64{},
	}))
	require.NotEmpty(t, s.Summary().OptimalWeights)

	s.Reset()
	assert.Empty(t, s.Summary().OptimalWeights)
}

func TestRebalancingTrades(t *testing.T) {
	target := map[string]float64{"A": 0.20, "B": 0.105, "C": 0.10}
	holdings := map[string]domain.Position{
		"A":   {Value: 10000},
		"B":   {Value: 10000},
		"C":   {Value: 15000},
		"OLD": {Value: 500},
		"BIG": {Value: 2000},
	}

	trades := rebalancingTrades([]string{"A", "B", "C"}, target, holdings, 100000)

	require.Len(t, trades, 3)
	assert.Equal(t, domain.TradeInstruction{Symbol: "A", Side: "buy", Value: 10000, TargetWeight: 0.2, CurrentWeight: 0.1, WeightChange: 0.1}, trades[0])
	assert.Equal(t, "C", trades[1].Symbol)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, 5000.0, trades[1].Value)
	assert.Equal(t, "BIG", trades[2].Symbol)
	assert.Equal(t, 0.0, trades[2].TargetWeight)
}

func TestBuySymbols_Dedupes(t *testing.T) {
	symbols, strengths := buySymbols([]domain.Signal{
		{Symbol: "A", Type: domain.SignalBuy, Strength: 0.5},
		{Symbol: "B", Type: domain.SignalSell, Strength: 0.7},
		{Symbol: "A", Type: domain.SignalBuy, Strength: 0.9},
	})
	assert.Equal(t, []string{"A"}, symbols)
	assert.Equal(t, []float64{0.9}, strengths)
}

func TestCents(t *testing.T) {
	assert.Equal(t, 1234.57, cents(1234.5678))
	assert.Equal(t, 0.1, cents(0.1000000001))
}

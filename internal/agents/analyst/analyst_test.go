package analyst

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

func series(n int, drift, vol float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		p := math.Sin(float64(i)*1.7) + 0.3*math.Cos(float64(i)*0.4)
		out[i] = drift + vol*p
	}
	return out
}

// threeGroups builds calm winners (A), volatile names (B) and slow losers (C).
func threeGroups() (*domain.ReturnFrame, []string) {
	data := map[string][]float64{}
	var symbols []string
	add := func(prefix string, drift, vol float64) {
		for j := 0; j < 3; j++ {
			s := prefix + string(rune('1'+j))
			data[s] = series(60, drift+float64(j)*1e-5, vol*(1+float64(j)*0.01))
			symbols = append(symbols, s)
		}
	}
	add("A", 0.004, 0.005)
	add("B", 0.000, 0.050)
	add("C", -0.004, 0.020)
	return domain.NewReturnFrame(data, symbols), symbols
}

func newAnalyst(k int) *Analyst {
	cfg := DefaultConfig()
	cfg.Clustering.NClusters = k
	return New(cfg, zerolog.Nop())
}

func signalSet(t *testing.T, d *domain.Decision) domain.SignalSetRecommendation {
	t.Helper()
	require.NotNil(t, d)
	rec, ok := d.Recommendation.(domain.SignalSetRecommendation)
	require.True(t, ok)
	return rec
}

func TestAnalyst_CrisisSellsVolatileCluster(t *testing.T) {
	frame, symbols := threeGroups()
	a := newAnalyst(3)

	d := a.Execute(agents.Input{
		"returns_df":     frame,
		"symbols":        symbols,
		"current_regime": "crisis",
	})

	rec := signalSet(t, d)
	assert.Equal(t, domain.DecisionAlphaGeneration, d.Type)
	assert.InDelta(t, 0.80, d.Confidence, 1e-9)
	assert.Len(t, rec.ClusterAssignments, 9)

	sold := map[string]bool{}
	for _, s := range rec.Signals {
		assert.Equal(t, domain.SignalSell, s.Type)
		assert.Equal(t, 0.9, s.Strength)
		sold[s.Symbol] = true
	}
	assert.Equal(t, map[string]bool{"B1": true, "B2": true, "B3": true}, sold)
	assert.Contains(t, d.Reasoning, "Regime: CRISIS")
	assert.Contains(t, d.Reasoning, "BUY: 0, SELL: 3")
	assert.Equal(t, "crisis", d.Metadata["current_regime"])
	assert.Equal(t, 3, d.Metadata["n_clusters"])
}

func TestAnalyst_UnknownRegimeEmitsNoSignals(t *testing.T) {
	frame, symbols := threeGroups()
	a := newAnalyst(3)

	d := a.Execute(agents.Input{"returns_df": frame, "symbols": symbols})

	rec := signalSet(t, d)
	assert.Empty(t, rec.Signals)
	assert.Contains(t, d.Reasoning, "Regime: UNKNOWN")
	assert.Equal(t, "unknown", d.Metadata["current_regime"])
}

func TestAnalyst_InsufficientData(t *testing.T) {
	frame, symbols := threeGroups()
	a := newAnalyst(10)

	d := a.Execute(agents.Input{"returns_df": frame, "symbols": symbols, "current_regime": "bull"})

	rec := signalSet(t, d)
	assert.Empty(t, rec.Signals)
	assert.Equal(t, true, d.Metadata["insufficient_data"])
	assert.Equal(t, domain.StatusIdle, a.Status().Status)
	assert.Equal(t, 0, a.Status().ErrorCount)
}

func TestAnalyst_InvalidInput(t *testing.T) {
	a := newAnalyst(3)

	assert.Nil(t, a.Execute(agents.Input{"symbols": []string{"A"}}))
	assert.Nil(t, a.Execute(agents.Input{"returns_df": "nope", "symbols": []string{"A"}}))
	assert.Equal(t, 2, a.Status().ErrorCount)
}

func TestAnalyst_ClusterSummaryAndReset(t *testing.T) {
	frame, symbols := threeGroups()
	a := newAnalyst(3)
	require.NotNil(t, a.Execute(agents.Input{"returns_df": frame, "symbols": symbols, "current_regime": "bear"}))

	summary := a.ClusterSummary()
	assert.Len(t, summary.ClusterAssignments, 9)
	assert.Equal(t, 3, summary.NClusters)

	a.Reset()
	assert.Empty(t, a.ClusterSummary().ClusterAssignments)
}

func TestDetermineSignal(t *testing.T) {
	testCases := []struct {
		name     string
		regime   domain.Regime
		stats    domain.ClusterStats
		kind     domain.SignalType
		strength float64
		emitted  bool
	}{
		{"bull high sharpe", domain.RegimeBull, domain.ClusterStats{Sharpe: 1.4, Beta: 1.0}, domain.SignalBuy, 0.7, true},
		{"bull capped", domain.RegimeBull, domain.ClusterStats{Sharpe: 3.0, Beta: 1.0}, domain.SignalBuy, 1.0, true},
		{"bull high beta", domain.RegimeBull, domain.ClusterStats{Sharpe: 0.5, Beta: 2.5}, "", 0, false},
		{"bear defensive", domain.RegimeBear, domain.ClusterStats{Beta: 0.5}, domain.SignalBuy, 0.6, true},
		{"bear high beta", domain.RegimeBear, domain.ClusterStats{Beta: 1.6}, domain.SignalSell, 0.7, true},
		{"bear neutral", domain.RegimeBear, domain.ClusterStats{Beta: 1.0}, "", 0, false},
		{"crisis volatile", domain.RegimeCrisis, domain.ClusterStats{Volatility: 0.04}, domain.SignalSell, 0.9, true},
		{"crisis calm", domain.RegimeCrisis, domain.ClusterStats{Volatility: 0.01}, "", 0, false},
		{"recovery discount", domain.RegimeRecovery, domain.ClusterStats{Sharpe: 0.9, MeanReturn: -0.001}, domain.SignalBuy, 0.8, true},
		{"recovery positive", domain.RegimeRecovery, domain.ClusterStats{Sharpe: 0.9, MeanReturn: 0.001}, "", 0, false},
		{"sideways", domain.RegimeSideways, domain.ClusterStats{MeanReturn: 0.0001}, "", 0, false},
		{"unknown", domain.RegimeUnknown, domain.ClusterStats{Sharpe: 5}, "", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig, ok := determineSignal("SYM", 2, tc.stats, tc.regime)
			assert.Equal(t, tc.emitted, ok)
			if !tc.emitted {
				return
			}
			assert.Equal(t, tc.kind, sig.Type)
			assert.InDelta(t, tc.strength, sig.Strength, 1e-12)
			assert.Equal(t, 2, sig.ClusterID)
		})
	}
}

func TestReasoning_TopBuy(t *testing.T) {
	signals := []domain.Signal{
		{Symbol: "A", Type: domain.SignalBuy, Strength: 0.6},
		{Symbol: "B", Type: domain.SignalBuy, Strength: 0.8},
		{Symbol: "C", Type: domain.SignalSell, Strength: 0.7},
	}
	r := reasoning(signals, map[int]string{1: "Defensive", 0: "Moderate"}, "bear")

	assert.Equal(t, "Regime: BEAR | Identified 3 actionable signals | BUY: 2, SELL: 1 | Clusters: Moderate, Defensive | Top BUY: B (strength=0.80)", r)
}

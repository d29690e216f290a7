package sentinel

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

type mockEstimator struct {
	mock.Mock
}

func (m *mockEstimator) MaxCorrelation(positions map[string]domain.Position, in agents.Input) (float64, error) {
	args := m.Called(positions, in)
	return args.Get(0).(float64), args.Error(1)
}

func calmReturns(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.005
		} else {
			out[i] = -0.005
		}
	}
	return out
}

func baseInput() agents.Input {
	return agents.Input{
		"proposed_trades": []domain.TradeInstruction{
			{Symbol: "AAPL", Side: "buy", Value: 10000},
		},
		"portfolio_value":     100000.0,
		"portfolio_positions": map[string]float64{"AAPL": 30000, "MSFT": 20000},
		"returns_history":     calmReturns(25),
	}
}

func verdict(t *testing.T, d *domain.Decision) domain.RiskVerdictRecommendation {
	t.Helper()
	require.NotNil(t, d)
	rec, ok := d.Recommendation.(domain.RiskVerdictRecommendation)
	require.True(t, ok)
	return rec
}

func TestSentinel_ApprovesWithinLimits(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())

	d := s.Execute(baseInput())

	rec := verdict(t, d)
	assert.Equal(t, domain.DecisionApprove, d.Type)
	assert.True(t, rec.Approved)
	assert.Empty(t, rec.VetoReasons)
	assert.Equal(t, 0.95, d.Confidence)
	assert.InDelta(t, 0.5, rec.RiskMetrics.VaR95, 1e-9)
	assert.InDelta(t, 0.5, rec.RiskMetrics.Leverage, 1e-9)
	assert.Equal(t, "Risk checks passed: VaR=0.50%, DD=0.00%, Leverage=0.50x", d.Reasoning)
	assert.Equal(t, "unknown", d.Metadata["market_regime"])
	assert.Equal(t, 1, d.Metadata["approved_count"])
}

func TestSentinel_VaRViolation(t *testing.T) {
	returns := make([]float64, 25)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[0], returns[1], returns[2] = -0.03, -0.03, -0.03

	in := baseInput()
	in["returns_history"] = returns

	s := New(DefaultConfig(), zerolog.Nop())
	d := s.Execute(in)

	rec := verdict(t, d)
	assert.Equal(t, domain.DecisionVeto, d.Type)
	assert.False(t, rec.Approved)
	assert.Equal(t, 1.0, d.Confidence)
	require.Len(t, rec.VetoReasons, 1)
	assert.Equal(t, "VaR violation: 3.00% exceeds limit of 2.0%", rec.VetoReasons[0])
	assert.Equal(t, "TRADE VETOED: "+rec.VetoReasons[0], d.Reasoning)
	assert.InDelta(t, 3.0, rec.RiskMetrics.VaR95, 1e-9)
	assert.InDelta(t, 3.0, rec.RiskMetrics.CVaR95, 1e-9)
}

func TestSentinel_ShortHistorySkipsVaR(t *testing.T) {
	in := baseInput()
	in["returns_history"] = []float64{-0.2, -0.3, -0.25}

	d := New(DefaultConfig(), zerolog.Nop()).Execute(in)

	rec := verdict(t, d)
	assert.True(t, rec.Approved)
	assert.Zero(t, rec.RiskMetrics.VaR95)
}

func TestSentinel_ZeroMinimumHistoryUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinVaRObservations = 0
	s := New(cfg, zerolog.Nop())

	in := baseInput()
	in["returns_history"] = []float64{-0.2, -0.3, -0.25}
	rec := verdict(t, s.Execute(in))
	assert.True(t, rec.Approved)
	assert.Zero(t, rec.RiskMetrics.VaR95)

	in["returns_history"] = []float64{}
	rec = verdict(t, s.Execute(in))
	assert.True(t, rec.Approved)
	assert.Zero(t, rec.RiskMetrics.VaR95)
}

func TestSentinel_SingleChecks(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(agents.Input)
		reason string
		check  string
	}{
		{
			name:   "drawdown",
			modify: func(in agents.Input) { in["current_drawdown"] = -12.5 },
			reason: "Drawdown violation: -12.50% exceeds limit of 10.0%",
			check:  "drawdown",
		},
		{
			name: "position size",
			modify: func(in agents.Input) {
				in["proposed_trades"] = []domain.TradeInstruction{{Symbol: "NVDA", Side: "buy", Value: 20000}}
			},
			reason: "Position size violation: [NVDA (20.0%)] exceed 15.0% limit",
			check:  "position_size",
		},
		{
			name:   "leverage",
			modify: func(in agents.Input) { in["portfolio_positions"] = map[string]float64{"AAPL": 150000, "TLT": -80000} },
			reason: "Leverage violation: 2.30x exceeds limit of 2.0x",
			check:  "leverage",
		},
		{
			name:   "daily loss",
			modify: func(in agents.Input) { in["daily_pnl_pct"] = -3.5 },
			reason: "Daily loss violation: -3.50% exceeds limit of -3.0%",
			check:  "daily_loss",
		},
		{
			name:   "correlation",
			modify: func(in agents.Input) { in["max_correlation"] = 0.97 },
			reason: "Correlation spike: 0.97 exceeds threshold of 0.95",
			check:  "correlation",
		},
		{
			name:   "crisis blocks buys",
			modify: func(in agents.Input) { in["market_regime"] = "CRISIS" },
			reason: "New long positions blocked during CRISIS regime",
			check:  "regime",
		},
		{
			name: "crisis blocks longs",
			modify: func(in agents.Input) {
				in["market_regime"] = "crisis"
				in["proposed_trades"] = []domain.TradeInstruction{{Symbol: "AAPL", Side: "long", Value: 5000}}
			},
			reason: "New long positions blocked during CRISIS regime",
			check:  "regime",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.modify(in)

			d := New(DefaultConfig(), zerolog.Nop()).Execute(in)

			rec := verdict(t, d)
			assert.Equal(t, domain.DecisionVeto, d.Type)
			assert.Equal(t, []string{tc.reason}, rec.VetoReasons)
			assert.Equal(t, []string{tc.check}, d.Metadata["failed_checks"])
		})
	}
}

func TestSentinel_CrisisAllowsSells(t *testing.T) {
	in := baseInput()
	in["market_regime"] = "crisis"
	in["proposed_trades"] = []domain.TradeInstruction{{Symbol: "AAPL", Side: "sell", Value: 5000}}

	d := New(DefaultConfig(), zerolog.Nop()).Execute(in)

	assert.True(t, verdict(t, d).Approved)
	assert.Equal(t, "crisis", d.Metadata["market_regime"])
}

func TestSentinel_MultipleViolationsJoined(t *testing.T) {
	in := baseInput()
	in["current_drawdown"] = 15.0
	in["daily_pnl_pct"] = -4.0

	s := New(DefaultConfig(), zerolog.Nop())
	d := s.Execute(in)

	rec := verdict(t, d)
	require.Len(t, rec.VetoReasons, 2)
	assert.Equal(t, "TRADE VETOED: "+rec.VetoReasons[0]+"; "+rec.VetoReasons[1], d.Reasoning)
	assert.Equal(t, rec.VetoReasons[0]+"; "+rec.VetoReasons[1], s.Summary().LastVetoReason)
}

func TestSentinel_CorrelationFromPositionReturns(t *testing.T) {
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = float64(i%7) * 0.001
		b[i] = a[i] * 2
	}
	in := baseInput()
	in["position_returns"] = map[string][]float64{"AAPL": a, "MSFT": b}

	d := New(DefaultConfig(), zerolog.Nop()).Execute(in)

	rec := verdict(t, d)
	assert.InDelta(t, 1.0, rec.RiskMetrics.MaxCorrelation, 1e-9)
	assert.Contains(t, d.Metadata["failed_checks"], "correlation")
}

func TestSentinel_CustomEstimator(t *testing.T) {
	est := new(mockEstimator)
	est.On("MaxCorrelation", mock.Anything, mock.Anything).Return(0.42, nil).Once()

	s := New(DefaultConfig(), zerolog.Nop(), WithCorrelationEstimator(est))
	d := s.Execute(baseInput())

	rec := verdict(t, d)
	assert.True(t, rec.Approved)
	assert.Equal(t, 0.42, rec.RiskMetrics.MaxCorrelation)
	est.AssertExpectations(t)
}

func TestSentinel_EstimatorErrorFailsExecution(t *testing.T) {
	est := new(mockEstimator)
	est.On("MaxCorrelation", mock.Anything, mock.Anything).Return(0.0, errors.New("feed down"))

	s := New(DefaultConfig(), zerolog.Nop(), WithCorrelationEstimator(est))

	assert.Nil(t, s.Execute(baseInput()))
	assert.Equal(t, domain.StatusError, s.Status().Status)
	assert.Equal(t, 1, s.Status().ErrorCount)
}

func TestSentinel_InvalidInput(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(agents.Input)
	}{
		{"missing trades", func(in agents.Input) { delete(in, "proposed_trades") }},
		{"missing history", func(in agents.Input) { delete(in, "returns_history") }},
		{"zero value", func(in agents.Input) { in["portfolio_value"] = 0 }},
		{"non numeric value", func(in agents.Input) { in["portfolio_value"] = "lots" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.modify(in)
			s := New(DefaultConfig(), zerolog.Nop())
			assert.Nil(t, s.Execute(in))
			assert.Equal(t, 1, s.Status().ErrorCount)
		})
	}
}

func TestSentinel_SummaryAndReset(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())

	s.Execute(baseInput())
	bad := baseInput()
	bad["daily_pnl_pct"] = -10.0
	s.Execute(bad)
	s.Execute(baseInput())
	s.Execute(bad)

	summary := s.Summary()
	assert.Equal(t, 2, summary.VetoCount)
	assert.Equal(t, 2, summary.ApprovedCount)
	assert.InDelta(t, 50.0, summary.VetoRatePct, 1e-9)
	assert.Equal(t, 2.0, summary.RiskLimits.MaxVaRPct)

	s.Reset()
	summary = s.Summary()
	assert.Zero(t, summary.VetoCount)
	assert.Zero(t, summary.ApprovedCount)
	assert.Zero(t, summary.VetoRatePct)
	assert.Empty(t, summary.LastVetoReason)
}

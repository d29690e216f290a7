package sentinel

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

type request struct {
	trades         []domain.TradeInstruction
	portfolioValue float64
	positions      map[string]domain.Position
	returns        []float64
	drawdown       float64
	dailyPnLPct    float64
	regimeTag      string
	regime         domain.Regime
	maxCorrelation float64
}

type checkResult struct {
	name   string
	passed bool
	reason string
}

// runChecks evaluates the seven limits in a fixed order.
func runChecks(cfg Config, req request) ([]checkResult, domain.RiskMetrics) {
	var m domain.RiskMetrics
	results := make([]checkResult, 0, 7)

	// Value at risk. Short histories pass with VaR 0.
	varPass := true
	if len(req.returns) >= cfg.MinVaRObservations {
		m.VaR95 = math.Abs(formulas.Percentile(req.returns, 5)) * 100
		m.CVaR95 = math.Abs(formulas.CalculateCVaR(req.returns, 0.95)) * 100
		varPass = m.VaR95 <= cfg.MaxVaRPct
	}
	results = append(results, checkResult{
		name:   "var",
		passed: varPass,
		reason: fmt.Sprintf("VaR violation: %.2f%% exceeds limit of %s%%", m.VaR95, num(cfg.MaxVaRPct)),
	})

	m.CurrentDrawdown = req.drawdown
	results = append(results, checkResult{
		name:   "drawdown",
		passed: math.Abs(req.drawdown) <= cfg.MaxDrawdownPct,
		reason: fmt.Sprintf("Drawdown violation: %.2f%% exceeds limit of %s%%", req.drawdown, num(cfg.MaxDrawdownPct)),
	})

	var oversized []string
	for _, t := range req.trades {
		pct := t.Value / req.portfolioValue * 100
		if pct > cfg.MaxPositionSize*100 {
			oversized = append(oversized, fmt.Sprintf("%s (%.1f%%)", t.Symbol, pct))
		}
	}
	results = append(results, checkResult{
		name:   "position_size",
		passed: len(oversized) == 0,
		reason: fmt.Sprintf("Position size violation: [%s] exceed %s%% limit", strings.Join(oversized, ", "), num(cfg.MaxPositionSize*100)),
	})

	exposure := 0.0
	for _, p := range req.positions {
		exposure += math.Abs(p.Value)
	}
	m.Leverage = exposure / req.portfolioValue
	results = append(results, checkResult{
		name:   "leverage",
		passed: m.Leverage <= cfg.MaxLeverage,
		reason: fmt.Sprintf("Leverage violation: %.2fx exceeds limit of %sx", m.Leverage, num(cfg.MaxLeverage)),
	})

	m.DailyPnLPct = req.dailyPnLPct
	results = append(results, checkResult{
		name:   "daily_loss",
		passed: req.dailyPnLPct >= -cfg.MaxDailyLossPct,
		reason: fmt.Sprintf("Daily loss violation: %.2f%% exceeds limit of -%s%%", req.dailyPnLPct, num(cfg.MaxDailyLossPct)),
	})

	m.MaxCorrelation = req.maxCorrelation
	results = append(results, checkResult{
		name:   "correlation",
		passed: req.maxCorrelation <= cfg.CorrelationThreshold,
		reason: fmt.Sprintf("Correlation spike: %.2f exceeds threshold of %s", req.maxCorrelation, num(cfg.CorrelationThreshold)),
	})

	regimePass := true
	if req.regime == domain.RegimeCrisis {
		for _, t := range req.trades {
			if domain.IsLongSide(t.Side) {
				regimePass = false
				break
			}
		}
	}
	results = append(results, checkResult{
		name:   "regime",
		passed: regimePass,
		reason: "New long positions blocked during CRISIS regime",
	})

	return results, m
}

// num prints whole numbers with one decimal ("2.0") and keeps the shortest
// exact form otherwise.
func num(v float64) string {
	v = math.Round(v*1e9) / 1e9
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

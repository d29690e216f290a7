package analyst

import (
	"fmt"
	"math"

	"github.com/aristath/aegis/internal/domain"
)

// determineSignal applies the regime rules to a symbol's cluster statistics.
// Only signals with positive strength are reported.
func determineSignal(symbol string, clusterID int, c domain.ClusterStats, regime domain.Regime) (domain.Signal, bool) {
	kind := domain.SignalHold
	strength := 0.0
	reason := "No clear signal"

	switch regime {
	case domain.RegimeBull:
		if c.Sharpe > 1.0 && c.Beta < 1.5 {
			kind = domain.SignalBuy
			strength = math.Min(c.Sharpe/2.0, 1.0)
			reason = fmt.Sprintf("High Sharpe (%.2f) in BULL regime", c.Sharpe)
		} else if c.Beta > 2.0 {
			reason = "High beta, risky in late bull"
		}
	case domain.RegimeBear:
		if c.Beta < 0.7 {
			kind = domain.SignalBuy
			strength = 0.6
			reason = fmt.Sprintf("Defensive (beta=%.2f) in BEAR regime", c.Beta)
		} else if c.Beta > 1.3 {
			kind = domain.SignalSell
			strength = 0.7
			reason = fmt.Sprintf("High beta (%.2f) in BEAR regime", c.Beta)
		}
	case domain.RegimeCrisis:
		if c.Volatility > 0.03 {
			kind = domain.SignalSell
			strength = 0.9
			reason = fmt.Sprintf("High volatility (%.2f%%) in CRISIS", c.Volatility*100)
		} else {
			reason = "Low volatility, safe to hold"
		}
	case domain.RegimeRecovery:
		if c.Sharpe > 0.8 && c.MeanReturn < 0 {
			kind = domain.SignalBuy
			strength = 0.8
			reason = "Quality asset at discount in RECOVERY"
		}
	case domain.RegimeSideways:
		if math.Abs(c.MeanReturn) < 0.001 {
			reason = "Neutral in SIDEWAYS regime"
		}
	}

	if strength <= 0 {
		return domain.Signal{}, false
	}
	return domain.Signal{
		Symbol:            symbol,
		Type:              kind,
		Strength:          strength,
		Reason:            reason,
		ClusterID:         clusterID,
		ClusterSharpe:     c.Sharpe,
		ClusterBeta:       c.Beta,
		ClusterVolatility: c.Volatility,
	}, true
}

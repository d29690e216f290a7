package oracle

import (
	"fmt"
	"strconv"

	"github.com/aristath/aegis/internal/domain"
)

// score applies the additive rules and returns the winning regime, its raw
// score and the triggered rule descriptions. Ties go to the regime listed
// first in domain.RegimeScoringOrder.
func score(cfg Config, ind indicators, previous domain.Regime) (domain.Regime, float64, []string) {
	scores := make(map[domain.Regime]float64, len(domain.RegimeScoringOrder))
	var reasons []string

	switch {
	case ind.vix > cfg.VIXCrisis:
		scores[domain.RegimeCrisis] += 0.4
		reasons = append(reasons, fmt.Sprintf("VIX extremely elevated (%.1f > %s)", ind.vix, threshold(cfg.VIXCrisis)))
	case ind.vix > cfg.VIXElevated:
		scores[domain.RegimeBear] += 0.3
		reasons = append(reasons, fmt.Sprintf("VIX elevated (%.1f)", ind.vix))
	case ind.vix < cfg.VIXBull:
		scores[domain.RegimeBull] += 0.3
		reasons = append(reasons, fmt.Sprintf("VIX low (%.1f < %s)", ind.vix, threshold(cfg.VIXBull)))
	default:
		scores[domain.RegimeSideways] += 0.2
		reasons = append(reasons, fmt.Sprintf("VIX moderate (%.1f)", ind.vix))
	}

	switch {
	case ind.yieldCurve < cfg.YieldInversion:
		scores[domain.RegimeCrisis] += 0.3
		scores[domain.RegimeBear] += 0.2
		reasons = append(reasons, fmt.Sprintf("Yield curve inverted (%.2f%%)", ind.yieldCurve))
	case ind.yieldCurve > cfg.SteepCurve:
		scores[domain.RegimeBull] += 0.2
		reasons = append(reasons, fmt.Sprintf("Yield curve steep (%.2f%%)", ind.yieldCurve))
	}

	if ind.ma50 != 0 && ind.ma200 != 0 {
		switch {
		case ind.spyPrice > ind.ma50 && ind.ma50 > ind.ma200:
			scores[domain.RegimeBull] += 0.3
			reasons = append(reasons, "Strong uptrend (price > MA50 > MA200)")
		case ind.spyPrice < ind.ma50 && ind.ma50 < ind.ma200:
			scores[domain.RegimeBear] += 0.3
			reasons = append(reasons, "Strong downtrend (price < MA50 < MA200)")
		case ind.ma50 > ind.ma200 && ind.spyPrice < ind.ma50:
			scores[domain.RegimeSideways] += 0.2
			reasons = append(reasons, "Consolidation phase")
		}
	}

	switch {
	case ind.sentiment < -0.5:
		scores[domain.RegimeCrisis] += 0.2
		scores[domain.RegimeBear] += 0.1
		reasons = append(reasons, fmt.Sprintf("Negative news sentiment (%.2f)", ind.sentiment))
	case ind.sentiment > 0.5:
		scores[domain.RegimeBull] += 0.2
		reasons = append(reasons, fmt.Sprintf("Positive news sentiment (%.2f)", ind.sentiment))
	}

	if previous == domain.RegimeCrisis && ind.vix < cfg.VIXRecovery {
		scores[domain.RegimeRecovery] += 0.4
		reasons = append(reasons, "Volatility declining from crisis levels")
	}

	best := domain.RegimeScoringOrder[0]
	for _, r := range domain.RegimeScoringOrder[1:] {
		if scores[r] > scores[best] {
			best = r
		}
	}
	return best, scores[best], reasons
}

// threshold prints whole numbers with one decimal ("30.0") and keeps the
// shortest exact form otherwise.
func threshold(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package domain

import "strings"

// SignalType is the direction of an analyst signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is a directional view on one symbol derived from its cluster.
type Signal struct {
	Symbol            string     `json:"symbol"`
	Type              SignalType `json:"signal_type"`
	Strength          float64    `json:"strength"`
	Reason            string     `json:"reason"`
	ClusterID         int        `json:"cluster_id"`
	ClusterSharpe     float64    `json:"cluster_sharpe"`
	ClusterBeta       float64    `json:"cluster_beta"`
	ClusterVolatility float64    `json:"cluster_volatility"`
}

// Trade sides.
const (
	SideBuy   = "buy"
	SideSell  = "sell"
	SideLong  = "long"
	SideShort = "short"
)

// IsLongSide reports whether a side adds long exposure ("long" or "buy").
func IsLongSide(side string) bool {
	s := strings.ToLower(strings.TrimSpace(side))
	return s == SideLong || s == SideBuy
}

// TradeInstruction is a proposed notional trade.
type TradeInstruction struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Value         float64 `json:"value"`
	TargetWeight  float64 `json:"target_weight"`
	CurrentWeight float64 `json:"current_weight"`
	WeightChange  float64 `json:"weight_change"`
}

// Position is a held exposure. Value is signed (short exposure is negative).
type Position struct {
	Value float64 `json:"value"`
}

// RiskMetrics are the values measured by the risk checks. Checks that did not
// run leave their metric at zero.
type RiskMetrics struct {
	VaR95           float64 `json:"var_95"`
	CVaR95          float64 `json:"cvar_95"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	Leverage        float64 `json:"leverage"`
	DailyPnLPct     float64 `json:"daily_pnl_pct"`
	MaxCorrelation  float64 `json:"max_correlation"`
}

// ClusterStats summarizes one cluster.
type ClusterStats struct {
	MeanReturn float64 `json:"mean_return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
	Beta       float64 `json:"beta"`
	Count      int     `json:"count"`
}

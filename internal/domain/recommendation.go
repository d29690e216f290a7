package domain

import "time"

// RecommendationKind tags each Recommendation variant.
type RecommendationKind string

const (
	KindRegime        RecommendationKind = "regime"
	KindSignalSet     RecommendationKind = "signal_set"
	KindPortfolioPlan RecommendationKind = "portfolio_plan"
	KindPortfolioHold RecommendationKind = "portfolio_hold"
	KindRiskVerdict   RecommendationKind = "risk_verdict"
)

// Recommendation is the typed payload of a Decision. The set of
// implementations is closed to this package.
type Recommendation interface {
	Kind() RecommendationKind
	isRecommendation()
}

// RegimeRecommendation is produced by the regime classifier.
type RegimeRecommendation struct {
	Regime             Regime `json:"regime"`
	RegimeChanged      bool   `json:"regime_changed"`
	RegimeDurationDays int    `json:"regime_duration_days"`
}

// SignalSetRecommendation is produced by the signal generator.
type SignalSetRecommendation struct {
	Signals                []Signal             `json:"signals"`
	ClusterAssignments     map[string]int       `json:"cluster_assignments"`
	ClusterCharacteristics map[int]ClusterStats `json:"cluster_characteristics"`
	ClusterNames           map[int]string       `json:"cluster_names"`
	ModelConfidence        map[string]float64   `json:"model_confidence"`
}

// PortfolioPlanRecommendation is produced by the optimizer.
type PortfolioPlanRecommendation struct {
	OptimalWeights     map[string]float64 `json:"optimal_weights"`
	Trades             []TradeInstruction `json:"trades"`
	ExpectedReturn     float64            `json:"expected_return"`
	ExpectedVolatility float64            `json:"expected_volatility"`
	SharpeRatio        float64            `json:"sharpe_ratio"`
}

// PortfolioHoldRecommendation keeps the current holdings.
type PortfolioHoldRecommendation struct {
	Action           string              `json:"action"`
	CurrentPortfolio map[string]Position `json:"current_portfolio"`
}

// RiskVerdictRecommendation is produced by the risk gate.
type RiskVerdictRecommendation struct {
	Approved    bool        `json:"approved"`
	VetoReasons []string    `json:"veto_reasons"`
	RiskMetrics RiskMetrics `json:"risk_metrics"`
}

func (RegimeRecommendation) Kind() RecommendationKind        { return KindRegime }
func (SignalSetRecommendation) Kind() RecommendationKind     { return KindSignalSet }
func (PortfolioPlanRecommendation) Kind() RecommendationKind { return KindPortfolioPlan }
func (PortfolioHoldRecommendation) Kind() RecommendationKind { return KindPortfolioHold }
func (RiskVerdictRecommendation) Kind() RecommendationKind   { return KindRiskVerdict }

func (RegimeRecommendation) isRecommendation()        {}
func (SignalSetRecommendation) isRecommendation()     {}
func (PortfolioPlanRecommendation) isRecommendation() {}
func (PortfolioHoldRecommendation) isRecommendation() {}
func (RiskVerdictRecommendation) isRecommendation()   {}

// RegimeSummary is the classifier's current view.
type RegimeSummary struct {
	CurrentRegime      Regime     `json:"current_regime"`
	Confidence         float64    `json:"confidence"`
	RegimeDurationDays int        `json:"regime_duration_days"`
	LastRegimeChange   *time.Time `json:"last_regime_change"`
}

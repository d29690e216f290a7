// Package sentinel is the risk gate: it approves or vetoes proposed trades
// against hard limits.
package sentinel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

// Name is the registry name of the risk gate.
const Name = "sentinel"

// Input keys.
const (
	KeyProposedTrades     = "proposed_trades"
	KeyPortfolioValue     = "portfolio_value"
	KeyPortfolioPositions = "portfolio_positions"
	KeyReturnsHistory     = "returns_history"
	KeyCurrentDrawdown    = "current_drawdown"
	KeyDailyPnLPct        = "daily_pnl_pct"
	KeyMarketRegime       = "market_regime"
	KeyPositionReturns    = "position_returns"
	KeyMaxCorrelation     = "max_correlation"
)

const (
	vetoConfidence    = 1.0
	approveConfidence = 0.95
)

// Config holds the risk limits. Percentages are in percent units.
type Config struct {
	MaxVaRPct            float64 `json:"max_var_pct"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	MaxPositionSize      float64 `json:"max_position_size"`
	MaxLeverage          float64 `json:"max_leverage"`
	CorrelationThreshold float64 `json:"correlation_threshold"`
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`
	MinVaRObservations   int     `json:"min_var_observations"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxVaRPct:            2.0,
		MaxDrawdownPct:       10.0,
		MaxPositionSize:      0.15,
		MaxLeverage:          2.0,
		CorrelationThreshold: 0.95,
		MaxDailyLossPct:      3.0,
		MinVaRObservations:   20,
	}
}

// RiskSummary reports running verdict statistics.
type RiskSummary struct {
	VetoCount      int     `json:"veto_count"`
	ApprovedCount  int     `json:"approved_count"`
	VetoRatePct    float64 `json:"veto_rate_pct"`
	LastVetoReason string  `json:"last_veto_reason"`
	RiskLimits     Config  `json:"risk_limits"`
}

// Option customizes the risk gate.
type Option func(*Sentinel)

// WithCorrelationEstimator replaces the default correlation source.
func WithCorrelationEstimator(e CorrelationEstimator) Option {
	return func(s *Sentinel) { s.correlation = e }
}

// Sentinel is the risk gate agent.
type Sentinel struct {
	*agents.Base
	cfg         Config
	correlation CorrelationEstimator
	log         zerolog.Logger

	mu             sync.RWMutex
	vetoCount      int
	approvedCount  int
	lastVetoReason string
}

// New creates the risk gate.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Sentinel {
	if cfg.MinVaRObservations < 1 {
		cfg.MinVaRObservations = DefaultConfig().MinVaRObservations
	}
	s := &Sentinel{cfg: cfg, correlation: ReturnsCorrelation{}}
	s.Base = agents.NewBase(Name, s, log)
	s.log = s.Base.Logger()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateInput requires the trades, a positive portfolio value, positions
// and the return history.
func (s *Sentinel) ValidateInput(in agents.Input) error {
	if err := in.Require(KeyProposedTrades, KeyPortfolioValue, KeyPortfolioPositions, KeyReturnsHistory); err != nil {
		return err
	}
	value, err := in.Float(KeyPortfolioValue)
	if err != nil {
		return err
	}
	if value <= 0 {
		return fmt.Errorf("portfolio_value must be positive, got %v: %w", value, domain.ErrInputValidation)
	}
	if _, err := in.Trades(KeyProposedTrades); err != nil {
		return err
	}
	if _, err := in.Positions(KeyPortfolioPositions); err != nil {
		return err
	}
	if _, err := in.Floats(KeyReturnsHistory); err != nil {
		return err
	}
	for _, key := range []string{KeyCurrentDrawdown, KeyDailyPnLPct, KeyMaxCorrelation} {
		if _, _, err := in.OptionalFloat(key); err != nil {
			return err
		}
	}
	if in.Has(KeyPositionReturns) {
		if _, err := in.FloatSeries(KeyPositionReturns); err != nil {
			return err
		}
	}
	return nil
}

// Process runs every check and vetoes if any fails.
func (s *Sentinel) Process(in agents.Input) (*domain.Decision, error) {
	req, err := s.readRequest(in)
	if err != nil {
		return nil, err
	}

	maxCorr, err := s.correlation.MaxCorrelation(req.positions, in)
	if err != nil {
		return nil, err
	}
	req.maxCorrelation = maxCorr

	results, metrics := runChecks(s.cfg, req)

	var reasons []string
	var failed []string
	for _, r := range results {
		if !r.passed {
			reasons = append(reasons, r.reason)
			failed = append(failed, r.name)
		}
	}

	s.mu.Lock()
	var kind domain.DecisionType
	var confidence float64
	var reasoning string
	if len(reasons) > 0 {
		kind = domain.DecisionVeto
		confidence = vetoConfidence
		s.vetoCount++
		s.lastVetoReason = strings.Join(reasons, "; ")
		reasoning = "TRADE VETOED: " + s.lastVetoReason
		s.log.Warn().Str("reasons", s.lastVetoReason).Msg("Veto issued")
	} else {
		kind = domain.DecisionApprove
		confidence = approveConfidence
		s.approvedCount++
		reasoning = fmt.Sprintf("Risk checks passed: VaR=%.2f%%, DD=%.2f%%, Leverage=%.2fx",
			metrics.VaR95, metrics.CurrentDrawdown, metrics.Leverage)
		s.log.Info().Msg("Trades approved, all risk checks passed")
	}
	vetoCount, approvedCount := s.vetoCount, s.approvedCount
	s.mu.Unlock()

	if reasons == nil {
		reasons = []string{}
	}
	if failed == nil {
		failed = []string{}
	}

	return domain.NewDecision(Name, kind, domain.RiskVerdictRecommendation{
		Approved:    kind == domain.DecisionApprove,
		VetoReasons: reasons,
		RiskMetrics: metrics,
	}, confidence, reasoning, map[string]interface{}{
		"veto_count":     vetoCount,
		"approved_count": approvedCount,
		"market_regime":  req.regimeTag,
		"failed_checks":  failed,
	}), nil
}

func (s *Sentinel) readRequest(in agents.Input) (request, error) {
	var req request
	var err error
	if req.trades, err = in.Trades(KeyProposedTrades); err != nil {
		return req, err
	}
	if req.portfolioValue, err = in.Float(KeyPortfolioValue); err != nil {
		return req, err
	}
	if req.positions, err = in.Positions(KeyPortfolioPositions); err != nil {
		return req, err
	}
	if req.returns, err = in.Floats(KeyReturnsHistory); err != nil {
		return req, err
	}
	req.drawdown, _, _ = in.OptionalFloat(KeyCurrentDrawdown)
	req.dailyPnLPct, _, _ = in.OptionalFloat(KeyDailyPnLPct)

	req.regimeTag = "unknown"
	if tag, ok := in.String(KeyMarketRegime); ok && tag != "" {
		req.regimeTag = tag
	}
	req.regime, _ = domain.ParseRegime(req.regimeTag)
	return req, nil
}

// Summary returns the running verdict statistics.
func (s *Sentinel) Summary() RiskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate := 0.0
	if total := s.vetoCount + s.approvedCount; total > 0 {
		rate = float64(s.vetoCount) / float64(total) * 100
	}
	return RiskSummary{
		VetoCount:      s.vetoCount,
		ApprovedCount:  s.approvedCount,
		VetoRatePct:    rate,
		LastVetoReason: s.lastVetoReason,
		RiskLimits:     s.cfg,
	}
}

// ResetState clears the verdict counters.
func (s *Sentinel) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vetoCount = 0
	s.approvedCount = 0
	s.lastVetoReason = ""
}

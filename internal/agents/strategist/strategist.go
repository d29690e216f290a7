// Package strategist converts BUY signals into target weights and the trades
// that move the current holdings there.
package strategist

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/internal/optimization"
)

// Name is the registry name of the portfolio optimizer agent.
const Name = "strategist"

// Input keys.
const (
	KeySignals          = "signals"
	KeyReturns          = "returns_df"
	KeyCurrentPortfolio = "current_portfolio"
	KeyPortfolioValue   = "portfolio_value"
)

const (
	// DefaultPortfolioValue is used when the caller gives none.
	DefaultPortfolioValue = 100000.0
	// MinObservations is the fewest complete return rows worth optimizing.
	MinObservations = 20
	// RebalanceThreshold is the weight gap below which no trade is issued.
	RebalanceThreshold = 0.01

	planConfidence = 0.80
	holdConfidence = 0.90
)

// Config configures the strategist.
type Config struct {
	Optimization optimization.Config
}

// DefaultConfig returns mean-variance optimization with default bounds.
func DefaultConfig() Config {
	return Config{Optimization: optimization.DefaultConfig()}
}

// Summary is the latest optimized plan.
type Summary struct {
	OptimalWeights     map[string]float64 `json:"optimal_weights"`
	ExpectedReturn     float64            `json:"expected_return"`
	ExpectedVolatility float64            `json:"expected_volatility"`
	SharpeRatio        float64            `json:"sharpe_ratio"`
	NPositions         int                `json:"n_positions"`
}

// Strategist is the portfolio optimizer agent.
type Strategist struct {
	*agents.Base
	cfg       Config
	optimizer *optimization.Optimizer
	log       zerolog.Logger

	mu   sync.RWMutex
	last Summary
}

// New creates the portfolio optimizer agent.
func New(cfg Config, log zerolog.Logger) *Strategist {
	s := &Strategist{cfg: cfg}
	s.Base = agents.NewBase(Name, s, log)
	s.log = s.Base.Logger()
	s.optimizer = optimization.NewOptimizer(cfg.Optimization, s.log)
	s.last = Summary{OptimalWeights: map[string]float64{}}
	return s
}

// ValidateInput requires signals and holdings. Returns are only needed once
// there is something to buy, so their absence is handled in Process.
func (s *Strategist) ValidateInput(in agents.Input) error {
	if err := in.Require(KeySignals, KeyCurrentPortfolio); err != nil {
		return err
	}
	if _, err := in.Signals(KeySignals); err != nil {
		return err
	}
	if _, err := in.Positions(KeyCurrentPortfolio); err != nil {
		return err
	}
	if in.Has(KeyReturns) {
		if _, err := in.Frame(KeyReturns); err != nil {
			return err
		}
	}
	if v, ok, err := in.OptionalFloat(KeyPortfolioValue); err != nil {
		return err
	} else if ok && v <= 0 {
		return fmt.Errorf("portfolio_value must be positive, got %v: %w", v, domain.ErrInputValidation)
	}
	return nil
}

// Process optimizes over the BUY symbols, or holds when there are none or the
// history is too short.
func (s *Strategist) Process(in agents.Input) (*domain.Decision, error) {
	signals, err := in.Signals(KeySignals)
	if err != nil {
		return nil, err
	}
	holdings, err := in.Positions(KeyCurrentPortfolio)
	if err != nil {
		return nil, err
	}
	value, ok, err := in.OptionalFloat(KeyPortfolioValue)
	if err != nil {
		return nil, err
	}
	if !ok {
		value = DefaultPortfolioValue
	}

	symbols, strengths := buySymbols(signals)
	if len(symbols) == 0 {
		s.log.Info().Msg("No BUY signals, maintaining current portfolio")
		return holdDecision(holdings, "No actionable signals, maintaining current portfolio", "no_buy_signals"), nil
	}

	if !in.Has(KeyReturns) {
		s.log.Warn().Msg("No return history supplied, maintaining current portfolio")
		return holdDecision(holdings, "Insufficient data for optimization, maintaining current portfolio", "insufficient_data"), nil
	}
	frame, err := in.Frame(KeyReturns)
	if err != nil {
		return nil, err
	}
	rows, err := frame.Subset(symbols)
	if err != nil || len(rows) < MinObservations {
		s.log.Warn().Int("observations", len(rows)).Msg("Insufficient data for optimization")
		return holdDecision(holdings, "Insufficient data for optimization, maintaining current portfolio", "insufficient_data"), nil
	}

	result, err := s.optimizer.Optimize(rows, strengths)
	if err != nil {
		return nil, err
	}

	lo, _ := s.optimizer.Bounds(len(symbols))
	weights := make(map[string]float64, len(symbols))
	keptSymbols := make([]string, 0, len(symbols))
	keptWeights := make([]float64, 0, len(symbols))
	keptCols := make([]int, 0, len(symbols))
	for i, sym := range symbols {
		if result.Weights[i] < lo-1e-12 {
			continue
		}
		weights[sym] = result.Weights[i]
		keptSymbols = append(keptSymbols, sym)
		keptWeights = append(keptWeights, result.Weights[i])
		keptCols = append(keptCols, i)
	}

	expReturn, expVol := optimization.PortfolioStats(selectColumns(rows, keptCols), keptWeights)
	sharpe := 0.0
	if expVol > 0 {
		sharpe = expReturn / expVol
	}

	trades := rebalancingTrades(keptSymbols, weights, holdings, value)

	s.mu.Lock()
	s.last = Summary{
		OptimalWeights:     copyWeights(weights),
		ExpectedReturn:     expReturn,
		ExpectedVolatility: expVol,
		SharpeRatio:        sharpe,
		NPositions:         len(weights),
	}
	s.mu.Unlock()

	return domain.NewDecision(Name, domain.DecisionPortfolioOptimization, domain.PortfolioPlanRecommendation{
		OptimalWeights:     weights,
		Trades:             trades,
		ExpectedReturn:     expReturn,
		ExpectedVolatility: expVol,
		SharpeRatio:        sharpe,
	}, planConfidence, planReasoning(weights, trades, expReturn, expVol, sharpe), map[string]interface{}{
		"n_positions":         len(weights),
		"optimization_method": string(s.optimizer.Method()),
		"converged":           result.Converged,
		"solver_status":       result.Status,
	}), nil
}

// Summary returns the latest optimized plan.
func (s *Strategist) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.last
	out.OptimalWeights = copyWeights(s.last.OptimalWeights)
	return out
}

// ResetState forgets the latest plan.
func (s *Strategist) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = Summary{OptimalWeights: map[string]float64{}}
}

// buySymbols returns BUY symbols in first-seen order with their strength. A
// repeated symbol keeps the last strength seen.
func buySymbols(signals []domain.Signal) ([]string, []float64) {
	index := map[string]int{}
	var symbols []string
	var strengths []float64
	for _, sig := range signals {
		if sig.Type != domain.SignalBuy {
			continue
		}
		if i, ok := index[sig.Symbol]; ok {
			strengths[i] = sig.Strength
			continue
		}
		index[sig.Symbol] = len(symbols)
		symbols = append(symbols, sig.Symbol)
		strengths = append(strengths, sig.Strength)
	}
	return symbols, strengths
}

func holdDecision(holdings map[string]domain.Position, reasoning, cause string) *domain.Decision {
	return domain.NewDecision(Name, domain.DecisionPortfolioHold, domain.PortfolioHoldRecommendation{
		Action:           "HOLD",
		CurrentPortfolio: holdings,
	}, holdConfidence, reasoning, map[string]interface{}{
		"hold_reason": cause,
	})
}

// rebalancingTrades closes the gap between current and target weights for
// every target symbol, then fully exits holdings that dropped out.
func rebalancingTrades(order []string, target map[string]float64, holdings map[string]domain.Position, portfolioValue float64) []domain.TradeInstruction {
	current := make(map[string]float64, len(holdings))
	for sym, pos := range holdings {
		current[sym] = pos.Value / portfolioValue
	}

	trades := []domain.TradeInstruction{}
	for _, sym := range order {
		change := target[sym] - current[sym]
		if abs(change) <= RebalanceThreshold {
			continue
		}
		side := domain.SideBuy
		if change < 0 {
			side = domain.SideSell
		}
		trades = append(trades, domain.TradeInstruction{
			Symbol:        sym,
			Side:          side,
			Value:         cents(abs(change) * portfolioValue),
			TargetWeight:  target[sym],
			CurrentWeight: current[sym],
			WeightChange:  change,
		})
	}

	exits := make([]string, 0)
	for sym, w := range current {
		if _, kept := target[sym]; !kept && w > RebalanceThreshold {
			exits = append(exits, sym)
		}
	}
	sort.Strings(exits)
	for _, sym := range exits {
		trades = append(trades, domain.TradeInstruction{
			Symbol:        sym,
			Side:          domain.SideSell,
			Value:         cents(current[sym] * portfolioValue),
			TargetWeight:  0,
			CurrentWeight: current[sym],
			WeightChange:  -current[sym],
		})
	}
	return trades
}

func planReasoning(weights map[string]float64, trades []domain.TradeInstruction, ret, vol, sharpe float64) string {
	type position struct {
		symbol string
		weight float64
	}
	ranked := make([]position, 0, len(weights))
	for sym, w := range weights {
		ranked = append(ranked, position{sym, w})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].symbol < ranked[j].symbol
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	top := make([]string, len(ranked))
	for i, p := range ranked {
		top[i] = fmt.Sprintf("%s (%.1f%%)", p.symbol, p.weight*100)
	}

	return strings.Join([]string{
		fmt.Sprintf("Optimized portfolio: %d positions", len(weights)),
		fmt.Sprintf("Expected Return: %.2f%%", ret*100),
		fmt.Sprintf("Expected Volatility: %.2f%%", vol*100),
		fmt.Sprintf("Sharpe Ratio: %.2f", sharpe),
		fmt.Sprintf("Rebalancing trades: %d", len(trades)),
		"Top positions: " + strings.Join(top, ", "),
	}, " | ")
}

func selectColumns(rows [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(cols))
		for j, c := range cols {
			out[i][j] = row[c]
		}
	}
	return out
}

// cents rounds a notional to two decimals.
func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

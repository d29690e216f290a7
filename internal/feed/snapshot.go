// Package feed supplies market snapshots to scheduled and one-shot workflow
// runs.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

// SnapshotProvider returns the workflow input for the current market state.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (agents.Input, error)
}

// Portfolio is the current book.
type Portfolio struct {
	Value     float64            `json:"value"`
	Positions map[string]float64 `json:"positions"`
}

// Snapshot is the on-disk market state. Either Returns or Prices supplies the
// asset table; Prices are converted to simple returns.
type Snapshot struct {
	Indicators     map[string]float64        `json:"indicators"`
	SPYPrices      []float64                 `json:"spy_prices,omitempty"`
	Returns        *domain.ReturnFrame       `json:"returns,omitempty"`
	Prices         map[string][]float64      `json:"prices,omitempty"`
	MarketReturns  []float64                 `json:"market_returns,omitempty"`
	Portfolio      *Portfolio                `json:"portfolio,omitempty"`
	ReturnsHistory []float64                 `json:"returns_history,omitempty"`
	ProposedTrades []domain.TradeInstruction `json:"proposed_trades,omitempty"`
	Drawdown       *float64                  `json:"current_drawdown,omitempty"`
	DailyPnLPct    *float64                  `json:"daily_pnl_pct,omitempty"`
}

// Input flattens the snapshot into the keys the agents read.
func (s Snapshot) Input() agents.Input {
	in := agents.Input{}
	for k, v := range s.Indicators {
		in[k] = v
	}
	if len(s.SPYPrices) > 0 {
		in["spy_prices"] = s.SPYPrices
	}

	frame := s.Returns
	if frame == nil && len(s.Prices) > 0 {
		frame = framePrices(s.Prices)
	}
	if frame != nil {
		in["returns_df"] = frame
		in["symbols"] = append([]string(nil), frame.Symbols...)
	}
	if len(s.MarketReturns) > 0 {
		in["market_returns"] = s.MarketReturns
	}

	if s.Portfolio != nil {
		positions := s.Portfolio.Positions
		if positions == nil {
			positions = map[string]float64{}
		}
		in["current_portfolio"] = positions
		in["portfolio_positions"] = positions
		if s.Portfolio.Value > 0 {
			in["portfolio_value"] = s.Portfolio.Value
		}
	}
	if len(s.ReturnsHistory) > 0 {
		in["returns_history"] = s.ReturnsHistory
	}
	if len(s.ProposedTrades) > 0 {
		in["proposed_trades"] = s.ProposedTrades
	}
	if s.Drawdown != nil {
		in["current_drawdown"] = *s.Drawdown
	}
	if s.DailyPnLPct != nil {
		in["daily_pnl_pct"] = *s.DailyPnLPct
	}
	return in
}

func framePrices(prices map[string][]float64) *domain.ReturnFrame {
	symbols := make([]string, 0, len(prices))
	series := make(map[string][]float64, len(prices))
	for sym, p := range prices {
		symbols = append(symbols, sym)
		series[sym] = formulas.CalculateReturns(p)
	}
	sort.Strings(symbols)
	return domain.NewReturnFrame(series, symbols)
}

// FileProvider reads a JSON snapshot from disk on every call, so an
// upstream process can replace the file between runs.
type FileProvider struct {
	path string
	log  zerolog.Logger
}

// NewFileProvider creates a provider for one file.
func NewFileProvider(path string, log zerolog.Logger) *FileProvider {
	return &FileProvider{
		path: path,
		log:  log.With().Str("component", "feed").Str("path", path).Logger(),
	}
}

// Snapshot implements SnapshotProvider.
func (p *FileProvider) Snapshot(ctx context.Context) (agents.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := ReadSnapshot(p.path)
	if err != nil {
		return nil, err
	}
	in := snap.Input()
	p.log.Debug().Int("keys", len(in)).Msg("Snapshot loaded")
	return in, nil
}

// ReadSnapshot decodes a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// StaticProvider serves a fixed input, replaceable at runtime.
type StaticProvider struct {
	mu sync.RWMutex
	in agents.Input
}

// NewStaticProvider creates a provider for a fixed input.
func NewStaticProvider(in agents.Input) *StaticProvider {
	return &StaticProvider{in: in}
}

// Set replaces the served input.
func (p *StaticProvider) Set(in agents.Input) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = in
}

// Snapshot implements SnapshotProvider. The returned map is a copy.
func (p *StaticProvider) Snapshot(ctx context.Context) (agents.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(agents.Input, len(p.in))
	for k, v := range p.in {
		out[k] = v
	}
	return out, nil
}

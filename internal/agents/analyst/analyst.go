// Package analyst turns asset clusters into regime-conditioned trade signals.
package analyst

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/clustering"
	"github.com/aristath/aegis/internal/domain"
)

// Name is the registry name of the signal generator.
const Name = "analyst"

// Input keys.
const (
	KeyReturns       = "returns_df"
	KeySymbols       = "symbols"
	KeyMarketReturns = "market_returns"
	KeyCurrentRegime = "current_regime"
)

// Model confidences averaged into the decision confidence.
const (
	clusteringConfidence       = 0.85
	signalGenerationConfidence = 0.75
)

// Config configures the analyst.
type Config struct {
	Clustering clustering.Config
}

// DefaultConfig returns the default clustering setup.
func DefaultConfig() Config {
	return Config{Clustering: clustering.DefaultConfig()}
}

// ClusterSummary is the analyst's latest clustering view.
type ClusterSummary struct {
	ClusterAssignments     map[string]int              `json:"cluster_assignments"`
	ClusterCharacteristics map[int]domain.ClusterStats `json:"cluster_characteristics"`
	NClusters              int                         `json:"n_clusters"`
}

// Analyst is the signal generator agent.
type Analyst struct {
	*agents.Base
	clusterer *clustering.Clusterer
	log       zerolog.Logger

	mu              sync.RWMutex
	assignments     map[string]int
	characteristics map[int]domain.ClusterStats
}

// New creates the signal generator.
func New(cfg Config, log zerolog.Logger) *Analyst {
	a := &Analyst{}
	a.Base = agents.NewBase(Name, a, log)
	a.log = a.Base.Logger()
	a.clusterer = clustering.New(cfg.Clustering, a.log)
	return a
}

// ValidateInput requires a return table and the symbol list.
func (a *Analyst) ValidateInput(in agents.Input) error {
	if err := in.Require(KeyReturns, KeySymbols); err != nil {
		return err
	}
	if _, err := in.Frame(KeyReturns); err != nil {
		return err
	}
	if _, err := in.Strings(KeySymbols); err != nil {
		return err
	}
	if in.Has(KeyMarketReturns) {
		if _, err := in.Floats(KeyMarketReturns); err != nil {
			return err
		}
	}
	return nil
}

// Process clusters the assets and emits one signal per symbol with a
// positive strength.
func (a *Analyst) Process(in agents.Input) (*domain.Decision, error) {
	frame, err := in.Frame(KeyReturns)
	if err != nil {
		return nil, err
	}
	symbols, err := in.Strings(KeySymbols)
	if err != nil {
		return nil, err
	}
	var market []float64
	if in.Has(KeyMarketReturns) {
		if market, err = in.Floats(KeyMarketReturns); err != nil {
			return nil, err
		}
	}
	regimeTag, ok := in.String(KeyCurrentRegime)
	if !ok || regimeTag == "" {
		regimeTag = "unknown"
	}
	regime, _ := domain.ParseRegime(regimeTag)

	a.log.Info().Int("symbols", len(symbols)).Msg("Clustering assets")
	if err := a.clusterer.Fit(frame, market); err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return a.insufficientData(symbols, regimeTag, err), nil
		}
		return nil, err
	}

	assignments, err := a.clusterer.Assignments(symbols)
	if err != nil {
		return nil, err
	}
	chars, err := a.clusterer.Characteristics()
	if err != nil {
		return nil, err
	}
	names, err := a.clusterer.Names()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.assignments = assignments
	a.characteristics = chars
	a.mu.Unlock()

	signals := make([]domain.Signal, 0, len(symbols))
	for _, symbol := range symbols {
		id, ok := assignments[symbol]
		if !ok {
			continue
		}
		if sig, ok := determineSignal(symbol, id, chars[id], regime); ok {
			signals = append(signals, sig)
		}
	}

	modelConfidence := map[string]float64{
		"clustering":        clusteringConfidence,
		"signal_generation": signalGenerationConfidence,
	}
	confidence := (clusteringConfidence + signalGenerationConfidence) / 2

	return domain.NewDecision(Name, domain.DecisionAlphaGeneration, domain.SignalSetRecommendation{
		Signals:                signals,
		ClusterAssignments:     assignments,
		ClusterCharacteristics: chars,
		ClusterNames:           names,
		ModelConfidence:        modelConfidence,
	}, confidence, reasoning(signals, names, regimeTag), map[string]interface{}{
		"n_symbols":      len(symbols),
		"n_clusters":     a.clusterer.NClusters(),
		"current_regime": regimeTag,
	}), nil
}

// insufficientData is the conservative outcome when clustering cannot run:
// no signals, flagged in metadata.
func (a *Analyst) insufficientData(symbols []string, regimeTag string, cause error) *domain.Decision {
	a.log.Warn().Err(cause).Msg("Clustering skipped, emitting no signals")

	a.mu.Lock()
	a.assignments = nil
	a.characteristics = nil
	a.mu.Unlock()

	return domain.NewDecision(Name, domain.DecisionAlphaGeneration, domain.SignalSetRecommendation{
		Signals:                []domain.Signal{},
		ClusterAssignments:     map[string]int{},
		ClusterCharacteristics: map[int]domain.ClusterStats{},
		ClusterNames:           map[int]string{},
		ModelConfidence:        map[string]float64{},
	}, 0, fmt.Sprintf("Regime: %s | Insufficient data for clustering: %v", strings.ToUpper(regimeTag), cause), map[string]interface{}{
		"n_symbols":         len(symbols),
		"n_clusters":        a.clusterer.NClusters(),
		"current_regime":    regimeTag,
		"insufficient_data": true,
	})
}

// ClusterSummary returns the latest clustering view.
func (a *Analyst) ClusterSummary() ClusterSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ClusterSummary{
		ClusterAssignments:     a.assignments,
		ClusterCharacteristics: a.characteristics,
		NClusters:              a.clusterer.NClusters(),
	}
}

// ResetState drops the fitted model and the cached view.
func (a *Analyst) ResetState() {
	a.clusterer.Reset()
	a.mu.Lock()
	a.assignments = nil
	a.characteristics = nil
	a.mu.Unlock()
}

func reasoning(signals []domain.Signal, names map[int]string, regimeTag string) string {
	var buys, sells []domain.Signal
	for _, s := range signals {
		switch s.Type {
		case domain.SignalBuy:
			buys = append(buys, s)
		case domain.SignalSell:
			sells = append(sells, s)
		}
	}

	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, names[id])
	}

	parts := []string{
		"Regime: " + strings.ToUpper(regimeTag),
		fmt.Sprintf("Identified %d actionable signals", len(signals)),
		fmt.Sprintf("BUY: %d, SELL: %d", len(buys), len(sells)),
		"Clusters: " + strings.Join(labels, ", "),
	}
	if len(buys) > 0 {
		top := buys[0]
		for _, s := range buys[1:] {
			if s.Strength > top.Strength {
				top = s
			}
		}
		parts = append(parts, fmt.Sprintf("Top BUY: %s (strength=%.2f)", top.Symbol, top.Strength))
	}
	return strings.Join(parts, " | ")
}

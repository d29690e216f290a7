package sentinel

import (
	"sort"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

// CorrelationEstimator supplies the maximum pairwise correlation between
// held positions.
type CorrelationEstimator interface {
	MaxCorrelation(positions map[string]domain.Position, in agents.Input) (float64, error)
}

// ReturnsCorrelation measures correlation from per-position return series
// under position_returns. Without series it uses a caller-supplied
// max_correlation, and without that it reports 0.
type ReturnsCorrelation struct{}

// MaxCorrelation implements CorrelationEstimator.
func (ReturnsCorrelation) MaxCorrelation(positions map[string]domain.Position, in agents.Input) (float64, error) {
	if in.Has(KeyPositionReturns) {
		series, err := in.FloatSeries(KeyPositionReturns)
		if err != nil {
			return 0, err
		}
		return formulas.MaxPairwiseCorrelation(heldSeries(series, positions)), nil
	}
	if v, ok, err := in.OptionalFloat(KeyMaxCorrelation); err != nil || ok {
		return v, err
	}
	return 0, nil
}

// heldSeries picks the series of held symbols in name order, or every series
// when none of them is held.
func heldSeries(series map[string][]float64, positions map[string]domain.Position) [][]float64 {
	names := make([]string, 0, len(series))
	for sym := range series {
		if _, held := positions[sym]; held {
			names = append(names, sym)
		}
	}
	if len(names) == 0 {
		for sym := range series {
			names = append(names, sym)
		}
	}
	sort.Strings(names)

	out := make([][]float64, len(names))
	for i, sym := range names {
		out[i] = series[sym]
	}
	return out
}

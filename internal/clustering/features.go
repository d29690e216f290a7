package clustering

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

// DefaultMinObservations is the shortest history an asset needs to be
// clustered.
const DefaultMinObservations = 20

// FeatureNames lists the feature vector layout.
var FeatureNames = []string{
	"mean_return",
	"volatility",
	"sharpe",
	"max_drawdown",
	"skewness",
	"kurtosis",
	"win_rate",
	"beta",
	"correlation",
	"momentum_20",
	"momentum_60",
}

// AssetFeatures is the risk/return profile of one asset.
type AssetFeatures struct {
	Symbol      string  `json:"symbol"`
	MeanReturn  float64 `json:"mean_return"`
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Skewness    float64 `json:"skewness"`
	Kurtosis    float64 `json:"kurtosis"`
	WinRate     float64 `json:"win_rate"`
	Beta        float64 `json:"beta"`
	Correlation float64 `json:"correlation"`
	Momentum20  float64 `json:"momentum_20"`
	Momentum60  float64 `json:"momentum_60"`
}

// Vector returns the features in FeatureNames order.
func (f AssetFeatures) Vector() []float64 {
	return []float64{
		f.MeanReturn,
		f.Volatility,
		f.Sharpe,
		f.MaxDrawdown,
		f.Skewness,
		f.Kurtosis,
		f.WinRate,
		f.Beta,
		f.Correlation,
		f.Momentum20,
		f.Momentum60,
	}
}

// ExtractFeatures profiles every symbol of the frame with at least minObs
// observations. market is the benchmark series aligned to the frame's last
// rows; without it beta is 1 and correlation 0. Skipped symbols are logged.
func ExtractFeatures(frame *domain.ReturnFrame, market []float64, minObs int, log zerolog.Logger) []AssetFeatures {
	if frame == nil {
		return nil
	}
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}

	out := make([]AssetFeatures, 0, len(frame.Symbols))
	for _, symbol := range frame.Symbols {
		returns, rows := frame.ColumnWithRows(symbol)
		if len(returns) < minObs {
			log.Warn().Str("symbol", symbol).Int("observations", len(returns)).Msg("Insufficient data, skipping")
			continue
		}

		f := AssetFeatures{
			Symbol:      symbol,
			MeanReturn:  formulas.Mean(returns),
			Volatility:  formulas.StdDev(returns),
			MaxDrawdown: formulas.MaxDrawdown(returns),
			Skewness:    formulas.Skew(returns),
			Kurtosis:    formulas.ExKurtosis(returns),
			WinRate:     formulas.WinRate(returns),
			Beta:        1,
			Momentum20:  formulas.Sum(formulas.Tail(returns, 20)),
			Momentum60:  formulas.Sum(formulas.Tail(returns, 60)),
		}
		if f.Volatility > 0 {
			f.Sharpe = f.MeanReturn / f.Volatility
		}

		if len(market) > 0 {
			asset, bench := alignToMarket(returns, rows, market, frame.Len())
			if len(asset) > 1 {
				f.Beta = formulas.Beta(asset, bench)
				f.Correlation = formulas.Correlation(asset, bench)
			} else {
				f.Correlation = 0
			}
		}
		if math.IsNaN(f.Correlation) {
			f.Correlation = 0
		}

		out = append(out, f)
	}
	return out
}

// alignToMarket pairs asset observations with benchmark values on the same
// row. The benchmark covers the last len(market) rows of the frame.
func alignToMarket(returns []float64, rows []int, market []float64, frameLen int) ([]float64, []float64) {
	offset := frameLen - len(market)
	asset := make([]float64, 0, len(returns))
	bench := make([]float64, 0, len(returns))
	for i, r := range rows {
		m := r - offset
		if m < 0 || m >= len(market) || math.IsNaN(market[m]) {
			continue
		}
		asset = append(asset, returns[i])
		bench = append(bench, market[m])
	}
	return asset, bench
}

package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the latest simple moving average over length closes,
// or nil when there are fewer closes than the window.
func CalculateSMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	if len(sma) == 0 {
		return nil
	}
	last := sma[len(sma)-1]
	if math.IsNaN(last) {
		return nil
	}
	return &last
}

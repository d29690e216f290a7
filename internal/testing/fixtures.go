package testing

import (
	"math"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

// BullMarket returns indicators the regime classifier scores as BULL.
func BullMarket() agents.Input {
	return agents.Input{
		"vix":            12.0,
		"spy_price":      450.0,
		"treasury_10y":   4.5,
		"treasury_2y":    3.0,
		"spy_ma_50":      440.0,
		"spy_ma_200":     420.0,
		"news_sentiment": 0.7,
	}
}

// CrisisMarket returns indicators the regime classifier scores as CRISIS.
func CrisisMarket() agents.Input {
	return agents.Input{
		"vix":            35.0,
		"spy_price":      400.0,
		"treasury_10y":   3.5,
		"treasury_2y":    4.0,
		"spy_ma_50":      420.0,
		"spy_ma_200":     430.0,
		"news_sentiment": -0.7,
	}
}

// RiskInput is a small portfolio that passes every risk check.
func RiskInput() agents.Input {
	history := make([]float64, 30)
	for i := range history {
		history[i] = 0.002 * math.Sin(float64(i))
	}
	return agents.Input{
		"proposed_trades":     []domain.TradeInstruction{{Symbol: "AAPL", Side: "buy", Value: 5000}},
		"portfolio_value":     100000.0,
		"portfolio_positions": map[string]float64{"AAPL": 40000},
		"returns_history":     history,
	}
}

// Universe builds nine symbols in three behavioral groups over 60 periods:
// calm winners (A1..A3), volatile names (B1..B3) and slow losers (C1..C3).
func Universe() (*domain.ReturnFrame, []string) {
	data := map[string][]float64{}
	var symbols []string
	add := func(prefix string, drift, vol float64) {
		for j := 0; j < 3; j++ {
			s := prefix + string(rune('1'+j))
			col := make([]float64, 60)
			for i := range col {
				p := math.Sin(float64(i)*1.7+float64(j)) + 0.3*math.Cos(float64(i)*0.4)
				col[i] = drift + float64(j)*1e-5 + vol*(1+float64(j)*0.01)*p
			}
			data[s] = col
			symbols = append(symbols, s)
		}
	}
	add("A", 0.006, 0.004)
	add("B", 0.000, 0.050)
	add("C", -0.004, 0.020)
	return domain.NewReturnFrame(data, symbols), symbols
}

// Merge combines inputs; later keys win.
func Merge(inputs ...agents.Input) agents.Input {
	out := agents.Input{}
	for _, in := range inputs {
		for k, v := range in {
			out[k] = v
		}
	}
	return out
}

// Package oracle classifies the market regime from a handful of macro
// indicators with a transparent additive scoring scheme.
package oracle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

// Name is the registry name of the regime classifier.
const Name = "oracle"

// Input keys.
const (
	KeyVIX           = "vix"
	KeySPYPrice      = "spy_price"
	KeyTreasury10Y   = "treasury_10y"
	KeyTreasury2Y    = "treasury_2y"
	KeySPYMA50       = "spy_ma_50"
	KeySPYMA200      = "spy_ma_200"
	KeyNewsSentiment = "news_sentiment"
	KeySPYPrices     = "spy_prices"
)

// Config holds the scoring thresholds.
type Config struct {
	VIXCrisis      float64 // VIX above this scores CRISIS
	VIXElevated    float64 // VIX above this scores BEAR
	VIXBull        float64 // VIX below this scores BULL
	VIXRecovery    float64 // VIX below this after CRISIS scores RECOVERY
	YieldInversion float64 // 10y-2y spread below this is an inversion
	SteepCurve     float64 // spread above this is steep
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		VIXCrisis:      30,
		VIXElevated:    20,
		VIXBull:        15,
		VIXRecovery:    25,
		YieldInversion: 0,
		SteepCurve:     1.0,
	}
}

// Oracle is the regime classifier agent.
type Oracle struct {
	*agents.Base
	cfg Config
	log zerolog.Logger

	mu           sync.RWMutex
	current      domain.Regime
	confidence   float64
	durationDays int
	lastChange   *time.Time
}

// New creates the regime classifier.
func New(cfg Config, log zerolog.Logger) *Oracle {
	o := &Oracle{cfg: cfg}
	o.Base = agents.NewBase(Name, o, log)
	o.log = o.Base.Logger()
	return o
}

// ValidateInput requires the four core indicators to be numeric.
func (o *Oracle) ValidateInput(in agents.Input) error {
	for _, key := range []string{KeyVIX, KeySPYPrice, KeyTreasury10Y, KeyTreasury2Y} {
		if _, err := in.Float(key); err != nil {
			return err
		}
	}
	for _, key := range []string{KeySPYMA50, KeySPYMA200, KeyNewsSentiment} {
		if _, _, err := in.OptionalFloat(key); err != nil {
			return err
		}
	}
	return nil
}

type indicators struct {
	vix        float64
	spyPrice   float64
	yieldCurve float64
	ma50       float64
	ma200      float64
	sentiment  float64
}

// Process scores each regime and records regime changes.
func (o *Oracle) Process(in agents.Input) (*domain.Decision, error) {
	ind, err := o.readIndicators(in)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	previous := o.current
	regime, score, reasons := score(o.cfg, ind, previous)
	confidence := score
	if confidence > 1 {
		confidence = 1
	}

	changed := previous != regime
	if changed {
		now := o.Now()
		o.lastChange = &now
		o.durationDays = 0
		o.log.Warn().
			Str("from", string(previous)).
			Str("to", string(regime)).
			Msg("Regime change detected")
	} else {
		o.durationDays++
	}
	o.current = regime
	o.confidence = confidence
	duration := o.durationDays
	var lastChange interface{}
	if o.lastChange != nil {
		lastChange = o.lastChange.Format(time.RFC3339)
	}
	o.mu.Unlock()

	reasoning := fmt.Sprintf("Regime: %s | %s", regime.Upper(), strings.Join(reasons, " | "))
	metadata := map[string]interface{}{
		"vix":                ind.vix,
		"yield_curve":        ind.yieldCurve,
		"spy_price":          ind.spyPrice,
		"news_sentiment":     ind.sentiment,
		"last_regime_change": lastChange,
	}
	if ind.ma50 != 0 && ind.ma200 != 0 {
		metadata["spy_ma_50"] = ind.ma50
		metadata["spy_ma_200"] = ind.ma200
	}

	return domain.NewDecision(Name, domain.DecisionRegimeDetection, domain.RegimeRecommendation{
		Regime:             regime,
		RegimeChanged:      changed,
		RegimeDurationDays: duration,
	}, confidence, reasoning, metadata), nil
}

func (o *Oracle) readIndicators(in agents.Input) (indicators, error) {
	var ind indicators
	var err error
	if ind.vix, err = in.Float(KeyVIX); err != nil {
		return ind, err
	}
	if ind.spyPrice, err = in.Float(KeySPYPrice); err != nil {
		return ind, err
	}
	t10, err := in.Float(KeyTreasury10Y)
	if err != nil {
		return ind, err
	}
	t2, err := in.Float(KeyTreasury2Y)
	if err != nil {
		return ind, err
	}
	ind.yieldCurve = t10 - t2

	ind.ma50, _, _ = in.OptionalFloat(KeySPYMA50)
	ind.ma200, _, _ = in.OptionalFloat(KeySPYMA200)
	ind.sentiment, _, _ = in.OptionalFloat(KeyNewsSentiment)

	if (ind.ma50 == 0 || ind.ma200 == 0) && in.Has(KeySPYPrices) {
		prices, err := in.Floats(KeySPYPrices)
		if err != nil {
			return ind, err
		}
		if ind.ma50 == 0 {
			if ma := formulas.CalculateSMA(prices, 50); ma != nil {
				ind.ma50 = *ma
			}
		}
		if ind.ma200 == 0 {
			if ma := formulas.CalculateSMA(prices, 200); ma != nil {
				ind.ma200 = *ma
			}
		}
	}
	return ind, nil
}

// CurrentRegime returns the last classified regime.
func (o *Oracle) CurrentRegime() domain.Regime {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Summary returns the classifier's current view.
func (o *Oracle) Summary() domain.RegimeSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var last *time.Time
	if o.lastChange != nil {
		t := *o.lastChange
		last = &t
	}
	return domain.RegimeSummary{
		CurrentRegime:      o.current,
		Confidence:         o.confidence,
		RegimeDurationDays: o.durationDays,
		LastRegimeChange:   last,
	}
}

// ResetState forgets the current regime so replays start from scratch.
func (o *Oracle) ResetState() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = domain.RegimeUnknown
	o.confidence = 0
	o.durationDays = 0
	o.lastChange = nil
}

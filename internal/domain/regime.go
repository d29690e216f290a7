package domain

import "strings"

// Regime is a coarse market-state label.
type Regime string

const (
	RegimeUnknown  Regime = ""
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeSideways Regime = "sideways"
	RegimeCrisis   Regime = "crisis"
	RegimeRecovery Regime = "recovery"
)

// RegimeScoringOrder is the fixed order used to score regimes and to break
// ties: the first regime reaching the top score wins.
var RegimeScoringOrder = []Regime{
	RegimeCrisis,
	RegimeBear,
	RegimeBull,
	RegimeSideways,
	RegimeRecovery,
}

// Upper returns the uppercase label used in reasoning strings.
func (r Regime) Upper() string {
	if r == RegimeUnknown {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(r))
}

// ParseRegime maps a tag case-insensitively. Unrecognized tags yield
// RegimeUnknown and false.
func ParseRegime(tag string) (Regime, bool) {
	switch Regime(strings.ToLower(strings.TrimSpace(tag))) {
	case RegimeBull:
		return RegimeBull, true
	case RegimeBear:
		return RegimeBear, true
	case RegimeSideways:
		return RegimeSideways, true
	case RegimeCrisis:
		return RegimeCrisis, true
	case RegimeRecovery:
		return RegimeRecovery, true
	default:
		return RegimeUnknown, false
	}
}
